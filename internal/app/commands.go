package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"fluid-gateway/internal/actions"
	"fluid-gateway/internal/history"
	"fluid-gateway/internal/pricefeed"
	"fluid-gateway/internal/tracker"
	"fluid-gateway/internal/wallet"
)

// PricesOptions configure a one-shot price lookup.
type PricesOptions struct {
	Symbols []string
	// Remote queries a running gateway instead of the provider.
	Remote string
}

// Prices prints one adapter result, falling back to the static table on failure.
func (a *App) Prices(ctx context.Context, opts PricesOptions, w io.Writer) error {
	var feed pricefeed.Feed = a.newPriceFeed()
	if opts.Remote != "" {
		feed = pricefeed.NewHTTPFeed(opts.Remote, a.Config.Pricing.RequestTimeout)
	}
	adapter := a.newAdapter(feed)

	symbols := opts.Symbols
	if len(symbols) == 0 {
		symbols = adapter.Symbols()
	}
	symbols = pricefeed.NormalizeSymbols(symbols)
	if len(symbols) == 0 {
		return errors.New("no symbols requested")
	}

	res := adapter.Prices(ctx, symbols)
	keys := make([]string, 0, len(res.Prices))
	for sym := range res.Prices {
		keys = append(keys, sym)
	}
	sort.Strings(keys)

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tPrice (USD)\t24h %")
	for _, sym := range keys {
		q := res.Prices[sym]
		fmt.Fprintf(writer, "%s\t%s\t%s\n", sym,
			decimal.NewFromFloat(q.Price).StringFixed(4),
			decimal.NewFromFloat(q.Change24h).StringFixed(2))
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	if res.UsingFallback {
		fmt.Fprintf(w, "using fallback prices: %s\n", sanitizeInline(res.Error))
	}
	return nil
}

// Balances prints the native and token balances of address, or of the
// configured wallet when address is empty.
func (a *App) Balances(ctx context.Context, address string, chainID int64, w io.Writer) error {
	c, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	account, err := resolveAccount(c.session, address)
	if err != nil {
		return err
	}
	if chainID <= 0 {
		chainID = c.session.ChainID()
	}

	balances, err := c.balances.Balances(ctx, account, chainID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s on %s\n", account.Hex(), wallet.ChainName(chainID))
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tBalance\tType\tContract")
	for _, b := range balances {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", b.Symbol, b.Balance, b.Type, b.Contract)
	}
	return writer.Flush()
}

// Quote prints the USD and FLD value of a prospective purchase.
func (a *App) Quote(ctx context.Context, amount decimal.Decimal, token string, w io.Writer) error {
	c, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	quote, err := c.actions.Quote(amount, token)
	if err != nil {
		return err
	}
	printQuote(w, quote)
	return nil
}

// Purchase records a simulated presale purchase for the configured wallet.
func (a *App) Purchase(ctx context.Context, amount decimal.Decimal, token string, w io.Writer) error {
	c, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	res, err := c.actions.Purchase(ctx, actions.PurchaseRequest{Amount: amount, Token: token})
	if err != nil {
		return err
	}
	printQuote(w, res.Quote)
	fmt.Fprintf(w, "recorded %s (%s FLD, %s)\n", res.Record.Hash, res.Record.Amount, res.Record.Status)
	return nil
}

// Claim claims the airdrop for the configured wallet. With follow set it
// then tracks the transaction to the required confirmation depth.
func (a *App) Claim(ctx context.Context, follow bool, w io.Writer) error {
	c, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	res, err := c.actions.Claim(ctx)
	if res.Hash != "" {
		fmt.Fprintf(w, "claim %s: %s FLD, %s\n", res.Hash, res.Amount, res.Record.Status)
	}
	if err != nil {
		var txErr *actions.TransactionFailedError
		if !follow || !errors.As(err, &txErr) || res.Record.Status != history.StatusPending {
			return err
		}
		a.Logger.Warn().Err(err).Msg("receipt not observed; continuing with tracker")
	}
	if !follow || res.Hash == "" || res.Record.Placeholder {
		return nil
	}
	return a.follow(ctx, c, common.HexToHash(res.Hash), res.Record.From, w)
}

// Track follows hash and prints every snapshot until a terminal state. The
// owner's history record, when present, is settled on completion.
func (a *App) Track(ctx context.Context, hash, owner string, w io.Writer) error {
	raw, err := hexutil.Decode(hash)
	if err != nil || len(raw) != common.HashLength {
		return fmt.Errorf("invalid transaction hash %q", hash)
	}
	if owner != "" && !common.IsHexAddress(owner) {
		return fmt.Errorf("%w: %q", wallet.ErrInvalidAddress, owner)
	}

	c, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	if owner == "" {
		if addr, err := c.session.Address(); err == nil {
			owner = addr.Hex()
		}
	}
	return a.follow(ctx, c, common.BytesToHash(raw), owner, w)
}

func (a *App) follow(ctx context.Context, c *components, hash common.Hash, owner string, w io.Writer) error {
	manager := tracker.NewManager(a.newTracker(c.client), tracker.ManagerOptions{
		History: c.history,
		Metrics: a.Metrics,
	}, a.Logger)
	defer manager.Close()

	manager.Track(hash, owner)
	updates, unsubscribe, _ := manager.Subscribe(hash)
	defer unsubscribe()

	var last tracker.Snapshot
	for {
		select {
		case <-ctx.Done():
			manager.Stop(hash)
			return ctx.Err()
		case snap, open := <-updates:
			if !open {
				manager.Wait()
				if last.Status == tracker.StatusFailed {
					return fmt.Errorf("transaction %s failed: %s", last.Hash, last.Error)
				}
				return nil
			}
			last = snap
			fmt.Fprintf(w, "%s\t%s\tconfirmations=%d", snap.UpdatedAt.Format("15:04:05"), snap.Status, snap.Confirmations)
			if snap.Error != "" {
				fmt.Fprintf(w, "\t%s", sanitizeInline(snap.Error))
			}
			fmt.Fprintln(w)
		}
	}
}

// Airdrop prints contract totals and, when an address is known, its claim status.
func (a *App) Airdrop(ctx context.Context, address string, w io.Writer) error {
	c, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	stats, err := c.actions.AirdropStats(ctx)
	if err != nil {
		return err
	}
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Total allocation\t%s\n", stats.TotalAllocation)
	fmt.Fprintf(writer, "Total claimed\t%s\n", stats.TotalClaimed)
	fmt.Fprintf(writer, "Remaining\t%s\n", stats.RemainingAllocation)
	fmt.Fprintf(writer, "Claim progress\t%s\n", stats.ClaimProgress)

	account, err := resolveAccount(c.session, address)
	if err == nil {
		status, err := c.actions.AirdropStatus(ctx, account)
		if err != nil {
			return err
		}
		fmt.Fprintf(writer, "Address\t%s\n", status.Address)
		fmt.Fprintf(writer, "Eligible\t%t\n", status.Eligible)
		fmt.Fprintf(writer, "Claimed\t%t\n", status.Claimed)
		fmt.Fprintf(writer, "Claimable\t%s\n", status.ClaimableAmount)
	} else if !errors.Is(err, wallet.ErrNotConnected) {
		return err
	}
	return writer.Flush()
}

// Presale prints the presale contract totals.
func (a *App) Presale(ctx context.Context, w io.Writer) error {
	c, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	stats, err := c.actions.PresaleStats(ctx)
	if err != nil {
		return err
	}
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "USDT raised\t%s\n", stats.TotalUSDTRaised)
	fmt.Fprintf(writer, "FLD sold\t%s\n", stats.TotalFLDSold)
	fmt.Fprintf(writer, "Soft cap\t%s (reached: %t)\n", stats.SoftCap, stats.SoftCapReached)
	fmt.Fprintf(writer, "Hard cap\t%s\n", stats.HardCap)
	fmt.Fprintf(writer, "Sale active\t%t\n", stats.SaleActive)
	return writer.Flush()
}

func printQuote(w io.Writer, q actions.PurchaseQuote) {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Pay\t%s %s\n", q.Amount.String(), q.Token)
	fmt.Fprintf(writer, "USD value\t%s\n", q.USDValue.StringFixed(2))
	fmt.Fprintf(writer, "FLD\t%s\n", q.FLDAmount.StringFixed(2))
	fmt.Fprintf(writer, "Minimum\t%s USD (enabled: %t)\n", q.MinUSD.StringFixed(2), q.Enabled)
	_ = writer.Flush()
}

// resolveAccount returns address when given, otherwise the session account.
func resolveAccount(session *wallet.Session, address string) (common.Address, error) {
	if address == "" {
		return session.Address()
	}
	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("%w: %q", wallet.ErrInvalidAddress, address)
	}
	return common.HexToAddress(address), nil
}
