package crypto

import (
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testSigner(t *testing.T) *Signer {
	t.Helper()
	pk, err := ethcrypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	s, err := NewSigner(pk, 137)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestSignerAddress(t *testing.T) {
	t.Parallel()

	s := testSigner(t)
	if got := s.Address().Hex(); !strings.EqualFold(got, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266") {
		t.Errorf("address = %s", got)
	}
}

func TestSignAuthMessageShape(t *testing.T) {
	t.Parallel()

	s := testSigner(t)
	sig, err := s.SignAuthMessage(s.Address().Hex(), 1700000000, 0)
	if err != nil {
		t.Fatalf("SignAuthMessage: %v", err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 2+130 {
		t.Errorf("signature shape = %q (len %d)", sig[:10], len(sig))
	}
	// Recovery byte must be normalized to 27/28.
	if v := sig[len(sig)-2:]; v != "1b" && v != "1c" {
		t.Errorf("v byte = %s", v)
	}
}

func TestSignOrderDeterministic(t *testing.T) {
	t.Parallel()

	s := testSigner(t)
	order := OrderPayload{
		Salt:        "12345",
		Maker:       s.Address().Hex(),
		Signer:      s.Address().Hex(),
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     "7126926592",
		MakerAmount: "25000000",
		TakerAmount: "48076923",
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
		Side:        0,
	}

	first, err := s.SignOrder(order)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	second, err := s.SignOrder(order)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	if first != second {
		t.Error("same payload must sign to the same signature")
	}

	order.MakerAmount = "26000000"
	changed, err := s.SignOrder(order)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	if changed == first {
		t.Error("different payload must sign to a different signature")
	}
}

func TestSignOrderRejectsBadNumbers(t *testing.T) {
	t.Parallel()

	s := testSigner(t)
	_, err := s.SignOrder(OrderPayload{Salt: "not-a-number"})
	if err == nil {
		t.Fatal("expected error for invalid salt")
	}
}

func TestL2HeadersDeterministic(t *testing.T) {
	t.Parallel()

	auth := &HMACAuth{
		Key:        "key-id",
		Secret:     "c2VjcmV0LWJ5dGVz", // base64("secret-bytes")
		Passphrase: "pass",
	}

	h1 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)
	h2 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)

	if h1["POLY_SIGNATURE"] == "" || h1["POLY_SIGNATURE"] != h2["POLY_SIGNATURE"] {
		t.Errorf("signatures differ: %q vs %q", h1["POLY_SIGNATURE"], h2["POLY_SIGNATURE"])
	}
	if h1["POLY_TIMESTAMP"] != "1700000000" {
		t.Errorf("timestamp = %s", h1["POLY_TIMESTAMP"])
	}

	h3 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":2}`, 1700000000)
	if h3["POLY_SIGNATURE"] == h1["POLY_SIGNATURE"] {
		t.Error("different body must produce a different signature")
	}
}

func TestHMACAuthStringRedacts(t *testing.T) {
	t.Parallel()

	auth := &HMACAuth{Key: "abcdef", Secret: "supersecret"}
	s := auth.String()
	if strings.Contains(s, "supersecret") || strings.Contains(s, "abcdef") {
		t.Errorf("String leaks credentials: %s", s)
	}
}
