package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"SolarAlpha/internal/ledger"
	"SolarAlpha/internal/model"
)

// FilePublisher writes to a public directory: receipts.txt gets
// human-readable donation receipts and run summaries, ledger.jsonl is the
// full re-verifiable export, and HEAD holds the chain checkpoint
// (sequence number and head hash).
type FilePublisher struct {
	dir string
	mu  sync.Mutex
	log zerolog.Logger
}

func NewFilePublisher(dir string, log zerolog.Logger) (*FilePublisher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create public dir: %w", err)
	}
	return &FilePublisher{dir: dir, log: log.With().Str("component", "publisher").Logger()}, nil
}

// Allocation appends a donation receipt.
func (p *FilePublisher) Allocation(t *model.Trade, a *model.Allocation) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] RECEIPT allocation %s\n", a.CreatedAt.Format(time.RFC3339), a.ID)
	fmt.Fprintf(&b, "  trade %s (%s %s) gain $%s\n", t.ID, t.Opportunity.Symbol, t.Mode, a.Gain)
	for _, l := range a.Lines {
		fmt.Fprintf(&b, "  -> %-12s %6s%%  $%s (%s)\n", l.RecipientID, l.Percentage, l.Amount, l.Tag)
	}
	fmt.Fprintf(&b, "  crisis share $%s\n", a.CrisisAmount())
	return p.appendReceipt(b.String())
}

// RunSummary appends a cycle summary with the derived balances.
func (p *FilePublisher) RunSummary(r *model.Run, sum *ledger.Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] RUN %s %s\n", time.Now().UTC().Format(time.RFC3339), r.ID, r.Outcome)
	fmt.Fprintf(&b, "  opportunities seen %d, trades executed %d\n", r.OpportunitiesSeen, r.TradesExecuted)
	fmt.Fprintf(&b, "  cash $%s | realized $%s | distributed $%s (crisis $%s)\n",
		sum.Cash, sum.RealizedPnL, sum.Distributed, sum.CrisisTotal)
	return p.appendReceipt(b.String())
}

// Refresh rewrites the JSONL export and the HEAD checkpoint. The export
// is written to a temp file and renamed so a reader never sees a torn
// file.
func (p *FilePublisher) Refresh(s ledger.Store) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tmp, err := os.CreateTemp(p.dir, "ledger-*.jsonl")
	if err != nil {
		return fmt.Errorf("create export temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	seq, hash, err := ledger.WriteExport(s, tmp)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(p.dir, "ledger.jsonl")); err != nil {
		return fmt.Errorf("publish export: %w", err)
	}

	head := fmt.Sprintf("%d %s\n", seq, hash)
	if err := os.WriteFile(filepath.Join(p.dir, "HEAD"), []byte(head), 0o644); err != nil {
		return fmt.Errorf("write head checkpoint: %w", err)
	}

	p.log.Debug().Uint64("seq", seq).Str("hash", hash).Msg("export refreshed")
	return nil
}

func (p *FilePublisher) appendReceipt(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(p.dir, "receipts.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open receipts: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("append receipt: %w", err)
	}
	return nil
}
