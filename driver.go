package firebolt

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"
)

func init() {
	sql.Register("firebolt", &fireboltDriver{})
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// --- Argument Binding ---

// bindArgs substitutes driver arguments into query. Named arguments
// (sql.Named) replace @name placeholders; unnamed ones replace ? in order.
// A query cannot mix both.
func bindArgs(query string, args []driver.NamedValue) (string, error) {
	if len(args) == 0 {
		return query, nil
	}

	named := args[0].Name != ""
	if named {
		params := make([]NamedParam, len(args))
		for i, arg := range args {
			if arg.Name == "" {
				return "", errors.New("firebolt: cannot mix named and positional arguments")
			}
			name := placeholderName(arg.Name)
			p, err := ParamOf(arg.Value)
			if err != nil {
				return "", &ParameterError{Name: name, Err: err}
			}
			params[i] = NamedParam{Name: name, Value: p}
		}
		return Substitute(query, params)
	}

	positional := make([]Param, len(args))
	for i, arg := range args {
		if arg.Name != "" {
			return "", errors.New("firebolt: cannot mix named and positional arguments")
		}
		p, err := ParamOf(arg.Value)
		if err != nil {
			return "", &ParameterError{Name: fmt.Sprintf("$%d", arg.Ordinal), Err: err}
		}
		positional[i] = p
	}
	return interpolatePositional(query, positional)
}

// placeholderName adds the @ sigil to names given without one.
func placeholderName(name string) string {
	if isWordByte(name[0]) {
		return "@" + name
	}
	return name
}

// --- Driver Types ---

// fireboltDriver implements driver.Driver and driver.DriverContext.
type fireboltDriver struct{}

var _ driver.Driver = (*fireboltDriver)(nil)
var _ driver.DriverContext = (*fireboltDriver)(nil)

// Open implements driver.Driver. It parses the DSN and returns a new connection.
func (d *fireboltDriver) Open(dsn string) (driver.Conn, error) {
	connector, err := NewConnector(dsn)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector implements driver.DriverContext.
func (d *fireboltDriver) OpenConnector(dsn string) (driver.Connector, error) {
	return NewConnector(dsn)
}

// --- Connector ---

// ConnectorOption configures a fireboltConnector.
type ConnectorOption func(*fireboltConnector)

// WithClientOptions passes extra options to the Client the connector creates,
// e.g. WithAuthenticator from the fireboltauth/oauth2 package.
func WithClientOptions(opts ...ClientOption) ConnectorOption {
	return func(c *fireboltConnector) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// WithConnectionSetup registers a hook called on every ConnectionContext the
// connector creates, after the DSN has been applied.
func WithConnectionSetup(fn func(*ConnectionContext)) ConnectorOption {
	return func(c *fireboltConnector) {
		c.connSetup = fn
	}
}

// fireboltConnector implements driver.Connector. It creates one shared Client
// (and so one credential cache) and a new ConnectionContext per Connect.
type fireboltConnector struct {
	cfg        *dsnConfig
	clientOpts []ClientOption
	connSetup  func(*ConnectionContext)

	client *Client
	once   sync.Once
	err    error

	// mu protects the resolved ids, looked up on first Connect
	mu        sync.Mutex
	accountID string
	engineURL string
}

var _ driver.Connector = (*fireboltConnector)(nil)

// NewConnector creates a new driver.Connector from a DSN string.
// Use this with sql.OpenDB.
func NewConnector(dsn string, opts ...ConnectorOption) (driver.Connector, error) {
	cfg, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	c := &fireboltConnector{
		cfg:       cfg,
		accountID: cfg.accountID,
		engineURL: cfg.engineURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect implements driver.Connector.
func (c *fireboltConnector) Connect(ctx context.Context) (driver.Conn, error) {
	c.once.Do(func() {
		opts := append(c.cfg.clientOptions(), c.clientOpts...)
		c.client, c.err = NewClient(c.cfg.clientID, c.cfg.clientSecret, opts...)
	})
	if c.err != nil {
		return nil, c.err
	}

	accountID, engineURL, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	cc := c.client.NewConnection().Database(c.cfg.database)
	if accountID != "" {
		cc.AccountID(accountID)
	}
	if engineURL != "" {
		cc.EngineURL(engineURL)
	}
	if c.connSetup != nil {
		c.connSetup(cc)
	}
	return &fireboltConn{cc: cc}, nil
}

// resolve looks up the account id and engine URL named in the DSN once and
// reuses them for later connections.
func (c *fireboltConnector) resolve(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accountID == "" && c.cfg.accountName != "" {
		id, err := c.client.ResolveAccountID(ctx, c.cfg.accountName)
		if err != nil {
			return "", "", err
		}
		c.accountID = id
	}
	if c.engineURL == "" && c.cfg.engine != "" {
		u, err := c.client.EngineURLByName(ctx, c.accountID, c.cfg.engine)
		if err != nil {
			return "", "", err
		}
		c.engineURL = u
	}
	return c.accountID, c.engineURL, nil
}

// Driver implements driver.Connector.
func (c *fireboltConnector) Driver() driver.Driver {
	return &fireboltDriver{}
}

// --- Connection ---

// fireboltConn implements driver.Conn, driver.QueryerContext,
// driver.ExecerContext and driver.NamedValueChecker.
//
// SET statements issued on a fireboltConn persist for the life of the
// underlying connection. Use (*sql.Conn).Raw and ClearSetList to drop them:
//
//	conn.Raw(func(c any) error {
//	    c.(interface{ ClearSetList() }).ClearSetList()
//	    return nil
//	})
type fireboltConn struct {
	cc     *ConnectionContext
	closed bool
}

var _ driver.Conn = (*fireboltConn)(nil)
var _ driver.QueryerContext = (*fireboltConn)(nil)
var _ driver.ExecerContext = (*fireboltConn)(nil)
var _ driver.ConnBeginTx = (*fireboltConn)(nil)
var _ driver.NamedValueChecker = (*fireboltConn)(nil)

// Prepare implements driver.Conn.
func (c *fireboltConn) Prepare(query string) (driver.Stmt, error) {
	return &fireboltStmt{conn: c, query: query}, nil
}

// Close implements driver.Conn.
func (c *fireboltConn) Close() error {
	c.closed = true
	return nil
}

// Begin implements driver.Conn. Use BeginTx instead.
func (c *fireboltConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx. Transactions are not supported.
func (c *fireboltConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return nil, errors.New("firebolt: transactions are not supported")
}

// CheckNamedValue implements driver.NamedValueChecker. Every value is passed
// through so that ParamOf decides what can be bound.
func (c *fireboltConn) CheckNamedValue(nv *driver.NamedValue) error {
	if v, ok := nv.Value.(driver.Valuer); ok {
		val, err := v.Value()
		if err != nil {
			return err
		}
		nv.Value = val
	}
	return nil
}

// ClearSetList drops the SET statements accumulated on this connection.
func (c *fireboltConn) ClearSetList() {
	c.cc.ClearSetList()
}

// QueryContext implements driver.QueryerContext.
func (c *fireboltConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if c.closed {
		return nil, driver.ErrBadConn
	}
	bound, err := bindArgs(query, args)
	if err != nil {
		return nil, err
	}
	qr, err := c.cc.Query(ctx, bound)
	if err != nil {
		return nil, err
	}
	return &fireboltRows{qr: qr}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *fireboltConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if c.closed {
		return nil, driver.ErrBadConn
	}
	bound, err := bindArgs(query, args)
	if err != nil {
		return nil, err
	}
	if _, err := c.cc.Execute(ctx, bound); err != nil {
		return nil, err
	}
	return driver.RowsAffected(0), nil
}

// --- Rows ---

// fireboltRows implements driver.Rows over a fully decoded QueryResult.
type fireboltRows struct {
	qr  *QueryResult
	pos int
}

var _ driver.Rows = (*fireboltRows)(nil)
var _ driver.RowsColumnTypeDatabaseTypeName = (*fireboltRows)(nil)
var _ driver.RowsColumnTypeScanType = (*fireboltRows)(nil)
var _ driver.RowsColumnTypeNullable = (*fireboltRows)(nil)

// Columns implements driver.Rows.
func (r *fireboltRows) Columns() []string {
	return r.qr.ColumnNames()
}

// Close implements driver.Rows.
func (r *fireboltRows) Close() error {
	r.pos = len(r.qr.Rows)
	return nil
}

// Next implements driver.Rows.
func (r *fireboltRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.qr.Rows) {
		return io.EOF
	}
	row := r.qr.Rows[r.pos]
	r.pos++

	for i := range dest {
		if i >= len(row) {
			dest[i] = nil
			continue
		}
		v, err := toDriverValue(row[i])
		if err != nil {
			return err
		}
		dest[i] = v
	}
	return nil
}

// toDriverValue converts decoded values that database/sql cannot carry
// (arrays, unknown types) to JSON text.
func toDriverValue(v any) (driver.Value, error) {
	switch val := v.(type) {
	case nil, int64, float64, bool, string, []byte, time.Time:
		return val, nil
	case json.Number:
		return val.String(), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("firebolt: cannot convert %T to a driver value: %w", v, err)
		}
		return string(b), nil
	}
}

// ColumnTypeDatabaseTypeName implements driver.RowsColumnTypeDatabaseTypeName.
func (r *fireboltRows) ColumnTypeDatabaseTypeName(index int) string {
	if index < 0 || index >= len(r.qr.Columns) {
		return ""
	}
	t, _ := r.qr.Columns[index].ColumnType()
	if t == TypeUnknown {
		base, _ := normalizeType(r.qr.Columns[index].Type)
		return strings.ToUpper(base)
	}
	return strings.ToUpper(t.String())
}

// ColumnTypeScanType implements driver.RowsColumnTypeScanType.
func (r *fireboltRows) ColumnTypeScanType(index int) reflect.Type {
	if index < 0 || index >= len(r.qr.Columns) {
		return reflect.TypeOf("")
	}
	t, _ := r.qr.Columns[index].ColumnType()
	return t.scanType()
}

// ColumnTypeNullable implements driver.RowsColumnTypeNullable.
func (r *fireboltRows) ColumnTypeNullable(index int) (nullable, ok bool) {
	if index < 0 || index >= len(r.qr.Columns) {
		return false, false
	}
	_, nullable = r.qr.Columns[index].ColumnType()
	return nullable, true
}

// --- Statement ---

// fireboltStmt implements driver.Stmt, driver.StmtQueryContext, and driver.StmtExecContext.
type fireboltStmt struct {
	conn  *fireboltConn
	query string
}

var _ driver.Stmt = (*fireboltStmt)(nil)
var _ driver.StmtQueryContext = (*fireboltStmt)(nil)
var _ driver.StmtExecContext = (*fireboltStmt)(nil)

// Close implements driver.Stmt.
func (s *fireboltStmt) Close() error {
	return nil
}

// NumInput implements driver.Stmt. Returns -1 to disable driver-side validation.
func (s *fireboltStmt) NumInput() int {
	return -1
}

// Exec implements driver.Stmt.
func (s *fireboltStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

// Query implements driver.Stmt.
func (s *fireboltStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

// ExecContext implements driver.StmtExecContext.
func (s *fireboltStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

// QueryContext implements driver.StmtQueryContext.
func (s *fireboltStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

// namedValues converts positional args to NamedValue slice.
func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}
