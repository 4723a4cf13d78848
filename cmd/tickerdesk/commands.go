package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tickerdesk/tickerdesk/pkg/market"
)

// IndexCmd builds or rebuilds the document index.
type IndexCmd struct {
	Force bool `help:"Rebuild even when a persisted index exists."`
}

func (c *IndexCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, loader, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	applyConfigLogger(cli, &cfg.Logger)

	engine, err := buildKnowledgeEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up knowledge base: %w", err)
	}
	defer engine.Close()

	if err := engine.BuildIndex(ctx, c.Force || cfg.Knowledge.ForceRebuild); err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	stats := engine.Stats()
	fmt.Printf("Indexed %d documents (%d chunks) from %s\n",
		stats.DocumentCount, stats.ChunkCount, cfg.Knowledge.DocsDir)
	return nil
}

// SearchCmd runs one query against the document index and prints the
// matching passages.
type SearchCmd struct {
	Query string `arg:"" help:"Query text."`
	TopK  int    `name:"top-k" help:"Number of passages to return." default:"3"`
}

func (c *SearchCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, loader, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	applyConfigLogger(cli, &cfg.Logger)

	engine, err := buildKnowledgeEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up knowledge base: %w", err)
	}
	defer engine.Close()

	// Adopts a persisted index when one exists, builds otherwise.
	if err := engine.BuildIndex(ctx, false); err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	results, err := engine.Search(ctx, c.Query, c.TopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No matching documents.")
		return nil
	}

	for i, res := range results {
		fmt.Printf("%d. %s (score %.3f)\n%s\n\n", i+1, res.SourceFile, res.Score, res.Content)
	}
	return nil
}

// QuoteCmd fetches one stock quote and prints it as JSON.
type QuoteCmd struct {
	Symbol string `arg:"" help:"Ticker symbol (e.g. AMZN)."`
}

func (c *QuoteCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, loader, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	applyConfigLogger(cli, &cfg.Logger)

	quote, err := market.NewClient(cfg.Market).Quote(ctx, c.Symbol)
	if err != nil {
		return fmt.Errorf("quote lookup failed: %w", err)
	}

	data, err := json.MarshalIndent(quote, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
