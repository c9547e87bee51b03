package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"binary-trader-go/internal/store"
	"binary-trader-go/posttrade"
)

func main() {
	dbPath := flag.String("db", "data/trades.db", "结果数据库路径")
	asset := flag.String("asset", "", "仅统计指定标的 (默认全量)")
	sinceStr := flag.String("since", "", "仅统计此时间之后的记录 (RFC3339，例如 2026-01-02T00:00:00Z)")
	flag.Parse()

	var since time.Time
	var err error
	if *sinceStr != "" {
		since, err = time.Parse(time.RFC3339Nano, *sinceStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "解析 since 参数失败: %v\n", err)
			os.Exit(1)
		}
	}

	db, err := store.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法打开数据库: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	recs, err := db.Records(context.Background(), store.Query{Asset: strings.ToUpper(*asset)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取记录失败: %v\n", err)
		os.Exit(1)
	}

	an := posttrade.NewAnalyzer()
	for _, rec := range recs {
		if !since.IsZero() && rec.Timestamp.Before(since) {
			continue
		}
		an.Add(rec)
	}
	st := an.Stats()

	fmt.Printf("opened=%d closed=%d wins=%d losses=%d draws=%d forced=%d reinforcement=%d\n",
		st.Opened, st.Total, st.Wins, st.Losses, st.Draws, st.Forced, st.Reinforcement)
	fmt.Printf("win_rate=%.2f%% net=%s gross_won=%s gross_lost=%s peak=%s max_drawdown=%s\n",
		st.WinRate*100,
		st.NetProfit.StringFixed(2),
		st.GrossWon.StringFixed(2),
		st.GrossLost.StringFixed(2),
		st.PeakProfit.StringFixed(2),
		st.MaxDrawdown.StringFixed(2))

	assets := make([]string, 0, len(st.ByAsset))
	for a := range st.ByAsset {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	for _, a := range assets {
		as := st.ByAsset[a]
		fmt.Printf("  %-10s total=%d wins=%d net=%s\n", a, as.Total, as.Wins, as.NetProfit.StringFixed(2))
	}
}
