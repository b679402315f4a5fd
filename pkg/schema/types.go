package schema

// Table is a node of the schema graph
type Table struct {
	Name     string   `json:"name"`
	RowCount int64    `json:"row_count"`
	Columns  []string `json:"columns"`
}

// ForeignKey is a declared reference from one table column to another
type ForeignKey struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// Direction tells whether a foreign key leaves or enters a table
type Direction string

const (
	// DirectionOutgoing marks keys declared on the table itself
	DirectionOutgoing Direction = "outgoing"
	// DirectionIncoming marks keys declared by other tables referencing this one
	DirectionIncoming Direction = "incoming"
)

// ForeignKeyRef is a foreign key seen from one of its endpoints
type ForeignKeyRef struct {
	ForeignKey
	Direction Direction `json:"direction"`
}

// Edge is one undirected traversal edge of the graph
type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// Statistics summarizes the shape of the schema graph
type Statistics struct {
	Tables      int     `json:"num_tables"`
	ForeignKeys int     `json:"num_foreign_keys"`
	IsConnected bool    `json:"is_connected"`
	Components  int     `json:"num_components"`
	AvgDegree   float64 `json:"avg_degree"`
	TotalRows   int64   `json:"total_rows"`
}
