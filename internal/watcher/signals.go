package watcher

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mirrorbot/mirrorbot/internal/domain"
	"github.com/mirrorbot/mirrorbot/internal/platform/chain"
)

// usdcDecimals converts 6-decimal fixed-point chain amounts to floats.
const usdcDecimals = 1e6

// signalsFromFill classifies one fill event into trade signals for the
// watched parties. The leg whose asset id is zero is the USDC payment; the
// party paying USDC bought the outcome token, the counterparty sold it.
// Fills where neither or both legs are USDC produce nothing.
func signalsFromFill(ev chain.OrderFilled, watched map[common.Address]bool, chainID int64, observedAt time.Time) []domain.TradeSignal {
	makerPaysUSDC := ev.MakerAssetID.Sign() == 0
	takerPaysUSDC := ev.TakerAssetID.Sign() == 0
	if makerPaysUSDC == takerPaysUSDC {
		return nil
	}

	var (
		usdcAmount *big.Int
		shareAmt   *big.Int
		tokenID    *big.Int
		makerSide  domain.Side
	)
	if makerPaysUSDC {
		usdcAmount, shareAmt, tokenID = ev.MakerAmount, ev.TakerAmount, ev.TakerAssetID
		makerSide = domain.SideBuy
	} else {
		usdcAmount, shareAmt, tokenID = ev.TakerAmount, ev.MakerAmount, ev.MakerAssetID
		makerSide = domain.SideSell
	}

	notional := fixedToFloat(usdcAmount)
	// A zero USDC amount carries no notional to mirror; skip the fill so
	// the ingest pointer keeps advancing past it.
	if notional <= 0 {
		return nil
	}
	shares := fixedToFloat(shareAmt)
	var price *float64
	if shares > 0 {
		p := notional / shares
		price = &p
	}

	build := func(wallet common.Address, side domain.Side) domain.TradeSignal {
		return domain.TradeSignal{
			ChainID:            chainID,
			TxHash:             strings.ToLower(ev.TxHash.Hex()),
			LogIndex:           ev.LogIndex,
			BlockNumber:        ev.BlockNumber,
			SourceWallet:       strings.ToLower(wallet.Hex()),
			Side:               side,
			TokenID:            tokenID.String(),
			SourceNotionalUSDC: notional,
			SourcePrice:        price,
			ObservedAt:         observedAt,
		}
	}

	var out []domain.TradeSignal
	if watched[ev.Maker] {
		out = append(out, build(ev.Maker, makerSide))
	}
	if watched[ev.Taker] {
		out = append(out, build(ev.Taker, opposite(makerSide)))
	}
	return out
}

func opposite(s domain.Side) domain.Side {
	if s == domain.SideBuy {
		return domain.SideSell
	}
	return domain.SideBuy
}

func fixedToFloat(units *big.Int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(units),
		big.NewFloat(usdcDecimals),
	).Float64()
	return f
}
