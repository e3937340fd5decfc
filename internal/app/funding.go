package app

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// balanceReader is the slice of the chain client the funding check reads.
type balanceReader interface {
	USDCBalance(ctx context.Context, token, wallet common.Address) (float64, error)
}

// checkFollowerFunding reads each follower's on-chain USDC balance before
// live trading starts and warns about wallets that cannot cover a single
// maximum-size order. The check is advisory: a cold wallet still gets its
// orders rejected per-placement, this just surfaces the problem at startup.
func checkFollowerFunding(ctx context.Context, reader balanceReader, usdcAddress string, followers []domain.Wallet, maxOrderUSDC float64, log *slog.Logger) {
	if usdcAddress == "" {
		log.Warn("funding check skipped, no usdc address configured")
		return
	}
	token := common.HexToAddress(usdcAddress)

	for _, f := range followers {
		balance, err := reader.USDCBalance(ctx, token, common.HexToAddress(f.Address))
		if err != nil {
			log.Warn("funding check failed",
				"wallet", f.Address,
				"error", err.Error(),
			)
			continue
		}
		if balance < maxOrderUSDC {
			log.Warn("follower underfunded",
				"wallet", f.Address,
				"usdc_balance", balance,
				"max_order_usdc", maxOrderUSDC,
			)
			continue
		}
		log.Info("follower funded",
			"wallet", f.Address,
			"usdc_balance", balance,
		)
	}
}
