// Package ton wraps the lite server connection and the two value
// transfers the settlement pipeline performs: USDT jetton payouts and
// broadcasting aggregator-built swap messages. Seeds passed in are
// used for one send and discarded with the wallet object.
package ton

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/tonlotto/backend/internal/config"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/jetton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"go.uber.org/zap"
)

const usdtDecimals = 6

// Gas budgets for jetton transfers. The forward amount makes the
// comment reach the recipient wallet.
var (
	jettonGas     = tlb.MustFromTON("0.05")
	jettonForward = tlb.MustFromTON("0.01")
)

type Client struct {
	api         ton.APIClientWrapped
	sendTimeout time.Duration
	log         *zap.Logger
}

// Connect establishes the lite server connection. With LITE_SERVER_HOST
// + LITE_SERVER_KEY set it pins a specific lite server, otherwise it
// auto-discovers from the global TON config for the configured network.
func Connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Client, error) {
	client := liteclient.NewConnectionPool()

	if cfg.LiteServerHost != "" && cfg.LiteServerKey != "" {
		addr := fmt.Sprintf("%s:%d", cfg.LiteServerHost, cfg.LiteServerPort)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, cfg.LiteServerKey); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		var configURL string
		switch strings.ToLower(cfg.TONNetwork) {
		case "mainnet":
			configURL = "https://ton.org/global.config.json"
		default:
			configURL = "https://ton.org/testnet-global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", cfg.TONNetwork))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := ton.ProofCheckPolicyFast
	if strings.ToLower(cfg.TONNetwork) == "mainnet" {
		proofPolicy = ton.ProofCheckPolicySecure
	}

	return &Client{
		api:         ton.NewAPIClient(client, proofPolicy).WithRetry(),
		sendTimeout: cfg.TONSendTimeout,
		log:         log,
	}, nil
}

// ExternalMessage is one aggregator-built transfer to sign and
// broadcast from the treasury wallet. Payload is a BOC body.
type ExternalMessage struct {
	To         string
	AmountNano int64
	Payload    []byte
}

// SendJetton transfers `amount` USDT base units to `to` with a text
// comment and returns the hex transaction hash. It waits only for the
// transaction to be accepted into a block, not for finality.
func (c *Client) SendJetton(ctx context.Context, seedWords []string, master, to string, amount int64, comment string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	w, err := wallet.FromSeed(c.api, seedWords, wallet.V4R2)
	if err != nil {
		return "", fmt.Errorf("derive wallet from seed: %w", err)
	}

	masterAddr, err := address.ParseAddr(master)
	if err != nil {
		return "", fmt.Errorf("invalid jetton master %s: %w", master, err)
	}
	toAddr, err := address.ParseAddr(to)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %s: %w", to, err)
	}

	token := jetton.NewJettonMasterClient(c.api, masterAddr)
	tokenWallet, err := token.GetJettonWallet(ctx, w.WalletAddress())
	if err != nil {
		return "", fmt.Errorf("resolve jetton wallet: %w", err)
	}

	commentCell, err := wallet.CreateCommentCell(comment)
	if err != nil {
		return "", err
	}

	transferPayload, err := tokenWallet.BuildTransferPayloadV2(
		toAddr, w.WalletAddress(), baseUnits(amount), jettonForward, commentCell, nil)
	if err != nil {
		return "", fmt.Errorf("build jetton transfer: %w", err)
	}

	tx, _, err := w.SendWaitTransaction(ctx, wallet.SimpleMessage(tokenWallet.Address(), jettonGas, transferPayload))
	if err != nil {
		return "", fmt.Errorf("broadcast jetton transfer: %w", err)
	}

	hash := hex.EncodeToString(tx.Hash)
	c.log.Info("jetton transfer sent",
		zap.String("to", to),
		zap.Int64("amount", amount),
		zap.String("tx_hash", hash),
	)
	return hash, nil
}

// SendExternal signs and broadcasts aggregator-built messages in order,
// waiting for each to land before the next. Returns the last tx hash.
func (c *Client) SendExternal(ctx context.Context, seedWords []string, msgs []ExternalMessage) (string, error) {
	w, err := wallet.FromSeed(c.api, seedWords, wallet.V4R2)
	if err != nil {
		return "", fmt.Errorf("derive wallet from seed: %w", err)
	}

	var lastHash string
	for _, m := range msgs {
		toAddr, err := address.ParseAddr(m.To)
		if err != nil {
			return "", fmt.Errorf("invalid message destination %s: %w", m.To, err)
		}
		body, err := cell.FromBOC(m.Payload)
		if err != nil {
			return "", fmt.Errorf("parse message payload: %w", err)
		}

		sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
		tx, _, err := w.SendWaitTransaction(sendCtx, wallet.SimpleMessage(toAddr, tlb.FromNanoTONU(uint64(m.AmountNano)), body))
		cancel()
		if err != nil {
			return "", fmt.Errorf("broadcast swap message to %s: %w", m.To, err)
		}
		lastHash = hex.EncodeToString(tx.Hash)
	}
	return lastHash, nil
}

// baseUnits renders an int64 amount of USDT base units as tlb.Coins.
func baseUnits(amount int64) tlb.Coins {
	whole := amount / 1_000_000
	frac := amount % 1_000_000
	return tlb.MustFromDecimal(fmt.Sprintf("%d.%06d", whole, frac), usdtDecimals)
}
