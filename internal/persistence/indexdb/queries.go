package indexdb

// Read side of the index, used by the admin endpoints. Queries share the
// single sqlite connection with the writer and may wait out an open batch
// transaction (bounded by busy_timeout).

type TickRow struct {
	Tick    uint64 `json:"tick"`
	Digest  string `json:"digest"`
	Joins   int    `json:"joins"`
	Leaves  int    `json:"leaves"`
	Actions int    `json:"actions"`
}

type WeatherRow struct {
	Tick uint64 `json:"tick"`
	Kind string `json:"kind"`
}

type AuditRow struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Pos    [2]int `json:"pos"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

func (s *SQLiteIndex) RecentTicks(limit int) ([]TickRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT tick,digest,joins,leaves,actions FROM ticks ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TickRow
	for rows.Next() {
		var r TickRow
		if err := rows.Scan(&r.Tick, &r.Digest, &r.Joins, &r.Leaves, &r.Actions); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) WeatherHistory(limit int) ([]WeatherRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT tick,kind FROM weather ORDER BY tick DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WeatherRow
	for rows.Next() {
		var r WeatherRow
		if err := rows.Scan(&r.Tick, &r.Kind); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HarvestTotals counts harvests per crop across the whole audit history.
func (s *SQLiteIndex) HarvestTotals() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT reason, COUNT(*) FROM audits WHERE action='HARVEST' GROUP BY reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var crop string
		var n int
		if err := rows.Scan(&crop, &n); err != nil {
			return nil, err
		}
		out[crop] = n
	}
	return out, rows.Err()
}

// PlotHistory returns the audit trail for one grid cell, newest first.
func (s *SQLiteIndex) PlotHistory(x, y, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT tick,actor,action,x,y,from_state,to_state,reason FROM audits WHERE x=? AND y=? ORDER BY tick DESC, seq DESC LIMIT ?`,
		x, y, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var r AuditRow
		if err := rows.Scan(&r.Tick, &r.Actor, &r.Action, &r.Pos[0], &r.Pos[1], &r.From, &r.To, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
