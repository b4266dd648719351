// Package protocol parses and renders the request grammar: one command
// per line, whitespace-separated tokens, read from stdin. It separates
// "parse the wire form" from "the domain object the rest of the system
// acts on", the wire form here being a line of text instead of a
// length-prefixed binary frame.
package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/oakmarket/exchange/internal/common"
	"github.com/shopspring/decimal"
)

// Command identifies which request grammar line was parsed.
type Command int

const (
	CmdPlaceOrder Command = iota
	CmdCancel
	CmdPrice
	CmdShow
	CmdHistory
	CmdAccountCreate
	CmdAccountShow
	CmdSimulate
	CmdUpgradeDB
	CmdExit
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedRequest = errors.New("malformed request")
)

var symbolPattern = regexp.MustCompile(`^[A-Z]{1,10}$`)

// Request is the parsed form of one request line.
type Request struct {
	Command Command

	Symbol string
	Side   common.Side
	Qty    uint64
	Price  float64

	OrderID uint64

	User string
	Pass string

	NUsers, NMarkets, NOrders int

	DBPath string
}

// Parse tokenizes line and validates it against the request grammar
// table. A blank line (or a line that is only whitespace) is rejected as
// ErrMalformedRequest before it ever reaches the engine.
func Parse(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{}, ErrMalformedRequest
	}

	verb := strings.ToLower(fields[0])
	switch verb {
	case "buy", "sell":
		return parsePlaceOrder(verb, fields[1:])
	case "cancel":
		return parseCancel(fields[1:])
	case "price":
		return parseSymbolOnly(CmdPrice, fields[1:])
	case "show":
		return parseSymbolOnly(CmdShow, fields[1:])
	case "history":
		return parseSymbolOnly(CmdHistory, fields[1:])
	case "account":
		return parseAccount(fields[1:])
	case "simulate":
		return parseSimulate(fields[1:])
	case "upgrade_db":
		return parseUpgradeDB(fields[1:])
	case "exit":
		if len(fields) != 1 {
			return Request{}, ErrMalformedRequest
		}
		return Request{Command: CmdExit}, nil
	default:
		return Request{}, fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
}

func parsePlaceOrder(verb string, f []string) (Request, error) {
	if len(f) != 5 {
		return Request{}, ErrMalformedRequest
	}
	symbol, err := parseSymbol(f[0])
	if err != nil {
		return Request{}, err
	}
	qty, err := strconv.ParseUint(f[1], 10, 64)
	if err != nil || qty == 0 {
		return Request{}, fmt.Errorf("%w: qty must be a positive integer", ErrMalformedRequest)
	}
	price, err := parsePrice(f[2])
	if err != nil {
		return Request{}, err
	}
	user, err := parsePrintable(f[3])
	if err != nil {
		return Request{}, err
	}
	pass, err := parsePrintable(f[4])
	if err != nil {
		return Request{}, err
	}
	side := common.Buy
	if verb == "sell" {
		side = common.Sell
	}
	return Request{
		Command: CmdPlaceOrder,
		Symbol:  symbol,
		Side:    side,
		Qty:     qty,
		Price:   price,
		User:    user,
		Pass:    pass,
	}, nil
}

func parseCancel(f []string) (Request, error) {
	if len(f) != 4 {
		return Request{}, ErrMalformedRequest
	}
	symbol, err := parseSymbol(f[0])
	if err != nil {
		return Request{}, err
	}
	orderID, err := strconv.ParseUint(f[1], 10, 64)
	if err != nil || orderID == 0 {
		return Request{}, fmt.Errorf("%w: order id must be a positive integer", ErrMalformedRequest)
	}
	user, err := parsePrintable(f[2])
	if err != nil {
		return Request{}, err
	}
	pass, err := parsePrintable(f[3])
	if err != nil {
		return Request{}, err
	}
	return Request{Command: CmdCancel, Symbol: symbol, OrderID: orderID, User: user, Pass: pass}, nil
}

func parseSymbolOnly(cmd Command, f []string) (Request, error) {
	if len(f) != 1 {
		return Request{}, ErrMalformedRequest
	}
	symbol, err := parseSymbol(f[0])
	if err != nil {
		return Request{}, err
	}
	return Request{Command: cmd, Symbol: symbol}, nil
}

func parseAccount(f []string) (Request, error) {
	if len(f) != 3 {
		return Request{}, ErrMalformedRequest
	}
	sub := strings.ToLower(f[0])
	user, err := parsePrintable(f[1])
	if err != nil {
		return Request{}, err
	}
	pass, err := parsePrintable(f[2])
	if err != nil {
		return Request{}, err
	}
	switch sub {
	case "create":
		return Request{Command: CmdAccountCreate, User: user, Pass: pass}, nil
	case "show":
		return Request{Command: CmdAccountShow, User: user, Pass: pass}, nil
	default:
		return Request{}, fmt.Errorf("%w: account %s", ErrUnknownCommand, f[0])
	}
}

func parseSimulate(f []string) (Request, error) {
	if len(f) != 3 {
		return Request{}, ErrMalformedRequest
	}
	n, err := parsePositiveInts(f)
	if err != nil {
		return Request{}, err
	}
	return Request{Command: CmdSimulate, NUsers: n[0], NMarkets: n[1], NOrders: n[2]}, nil
}

func parseUpgradeDB(f []string) (Request, error) {
	if len(f) != 3 {
		return Request{}, ErrMalformedRequest
	}
	user, err := parsePrintable(f[1])
	if err != nil {
		return Request{}, err
	}
	pass, err := parsePrintable(f[2])
	if err != nil {
		return Request{}, err
	}
	return Request{Command: CmdUpgradeDB, DBPath: f[0], User: user, Pass: pass}, nil
}

func parsePositiveInts(f []string) ([]int, error) {
	out := make([]int, len(f))
	for i, s := range f {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%w: expected a positive integer, got %q", ErrMalformedRequest, s)
		}
		out[i] = v
	}
	return out, nil
}

func parseSymbol(s string) (string, error) {
	if !symbolPattern.MatchString(s) {
		return "", fmt.Errorf("%w: symbol %q must match [A-Z]{1,10}", ErrMalformedRequest, s)
	}
	return s, nil
}

// parsePrice validates PRICE against a two-decimal-place limit using
// shopspring/decimal (rather than hand-rolled string splitting) before
// converting to the float64 the engine operates on.
func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: price %q is not a number", ErrMalformedRequest, s)
	}
	if d.Sign() <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", ErrMalformedRequest)
	}
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("%w: price %q has more than two decimal places", ErrMalformedRequest, s)
	}
	f, _ := d.Float64()
	return f, nil
}

func parsePrintable(s string) (string, error) {
	for _, r := range s {
		if r <= ' ' || r == 0x7f {
			return "", fmt.Errorf("%w: %q must be printable with no whitespace", ErrMalformedRequest, s)
		}
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty field", ErrMalformedRequest)
	}
	return s, nil
}
