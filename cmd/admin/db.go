package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	farmID := fs.String("farm", "", "farm id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	actor := fs.String("actor", "", "actor filter (audits)")
	x := fs.Int("x", 0, "plot x (plot query)")
	y := fs.Int("y", 0, "plot y (plot query)")
	_ = fs.Parse(args)

	q := "ticks"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*farmID) == "" {
			fmt.Fprintln(os.Stderr, "missing -farm or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "farms", *farmID, "index", "farm.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "ticks":
		rows, err := db.Query(`SELECT tick,digest,joins,leaves,actions FROM ticks ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    int64  `json:"tick"`
				Digest  string `json:"digest"`
				Joins   int    `json:"joins"`
				Leaves  int    `json:"leaves"`
				Actions int    `json:"actions"`
			}
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Joins, &r.Leaves, &r.Actions); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "weather":
		rows, err := db.Query(`SELECT tick,kind FROM weather ORDER BY tick DESC, seq DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick int64  `json:"tick"`
				Kind string `json:"kind"`
			}
			if err := rows.Scan(&r.Tick, &r.Kind); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "harvests":
		rows, err := db.Query(`SELECT reason, COUNT(*) AS n FROM audits WHERE action='HARVEST' GROUP BY reason ORDER BY n DESC`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Crop  string `json:"crop"`
				Count int    `json:"count"`
			}
			if err := rows.Scan(&r.Crop, &r.Count); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "audits":
		sqlq := `SELECT tick,actor,action,x,y,from_state,to_state,COALESCE(reason,'') FROM audits ORDER BY tick DESC, seq DESC LIMIT ?`
		qargs := []any{*limit}
		if strings.TrimSpace(*actor) != "" {
			sqlq = `SELECT tick,actor,action,x,y,from_state,to_state,COALESCE(reason,'') FROM audits WHERE actor=? ORDER BY tick DESC, seq DESC LIMIT ?`
			qargs = []any{strings.TrimSpace(*actor), *limit}
		}
		queryAudits(db, sqlq, qargs)

	case "plot":
		sqlq := `SELECT tick,actor,action,x,y,from_state,to_state,COALESCE(reason,'') FROM audits WHERE x=? AND y=? ORDER BY tick DESC, seq DESC LIMIT ?`
		queryAudits(db, sqlq, []any{*x, *y, *limit})

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-farm FARM|-db PATH] ticks|weather|harvests|audits|plot")
		os.Exit(2)
	}
}

func queryAudits(db *sql.DB, sqlq string, args []any) {
	rows, err := db.Query(sqlq, args...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Tick   int64  `json:"tick"`
			Actor  string `json:"actor"`
			Action string `json:"action"`
			X      int    `json:"x"`
			Y      int    `json:"y"`
			From   string `json:"from"`
			To     string `json:"to"`
			Reason string `json:"reason,omitempty"`
		}
		if err := rows.Scan(&r.Tick, &r.Actor, &r.Action, &r.X, &r.Y, &r.From, &r.To, &r.Reason); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		printJSON(r)
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
