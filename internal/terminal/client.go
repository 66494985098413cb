// Package terminal speaks the SOAP-over-HTTP protocol exposed by biometric
// attendance terminals on /iWsService.
package terminal

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/goliatone/go-errors"
	"golang.org/x/text/encoding/charmap"
)

const (
	servicePath = "/iWsService"
	timeLayout  = "2006-01-02 15:04:05"

	// clearAttendanceLogs is the ClearData selector for punch records only.
	clearAttendanceLogs = 3
)

// ErrDeviceRejected is returned when the terminal answers but refuses the command.
var ErrDeviceRejected = apperrors.New("device rejected the command", apperrors.CategoryExternal).
	WithTextCode("DEVICE_REJECTED")

// Rejected reports whether err is a refusal from a reachable terminal, as
// opposed to a transport failure.
func Rejected(err error) bool {
	var ge *apperrors.Error
	return errors.As(err, &ge) && ge.TextCode == ErrDeviceRejected.TextCode
}

// Device addresses one terminal.
type Device struct {
	Host    string
	Port    int
	CommKey string
	// Location interprets the terminal's wall-clock timestamps.
	Location *time.Location
}

func (d Device) endpoint() string {
	return "http://" + net.JoinHostPort(d.Host, strconv.Itoa(d.Port)) + servicePath
}

func (d Device) comKey() string {
	if strings.TrimSpace(d.CommKey) == "" {
		return "0"
	}
	return d.CommKey
}

func (d Device) location() *time.Location {
	if d.Location == nil {
		return time.Local
	}
	return d.Location
}

// Punch is one raw attendance record read from a terminal.
type Punch struct {
	PIN        string
	Time       time.Time
	VerifyMode int
	InOutMode  int
}

// User is the roster entry pushed to a terminal.
type User struct {
	PIN  string
	Name string
}

type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewClientWith uses a caller supplied http.Client.
func NewClientWith(hc *http.Client) *Client {
	return &Client{http: hc}
}

type arg struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// argList is the <Arg> block. Each item is named by its own XMLName.
type argList struct {
	Items []arg
}

type command struct {
	XMLName xml.Name
	ComKey  string   `xml:"ArgComKey"`
	Args    *argList `xml:"Arg,omitempty"`
}

// newCommand leaves Args nil for argument-less commands so no <Arg> is sent.
func newCommand(name string, d Device, args ...arg) command {
	cmd := command{XMLName: xml.Name{Local: name}, ComKey: d.comKey()}
	if len(args) > 0 {
		cmd.Args = &argList{Items: args}
	}
	return cmd
}

func field(name, value string) arg {
	return arg{XMLName: xml.Name{Local: name}, Value: value}
}

type row struct {
	PIN         string `xml:"PIN"`
	DateTime    string `xml:"DateTime"`
	Verified    string `xml:"Verified"`
	Status      string `xml:"Status"`
	Result      string `xml:"Result"`
	Information string `xml:"Information"`
	Date        string `xml:"Date"`
	Time        string `xml:"Time"`
}

func (c *Client) call(ctx context.Context, d Device, cmd command) ([]row, error) {
	body, err := xml.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.XMLName.Local, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", cmd.XMLName.Local, d.endpoint(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: device answered HTTP %d", cmd.XMLName.Local, resp.StatusCode)
	}
	return decodeRows(resp.Body)
}

// decodeRows collects every <Row> element, whatever envelope surrounds them.
func decodeRows(r io.Reader) ([]row, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = charsetReader
	var rows []row
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode device response: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Row" {
			continue
		}
		var rw row
		if err := dec.DecodeElement(&rw, &start); err != nil {
			return nil, fmt.Errorf("decode device row: %w", err)
		}
		rows = append(rows, rw)
	}
}

// Terminals declare iso8859-1 in their responses.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.ReplaceAll(label, "-", "")) {
	case "iso88591", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "utf8", "usascii", "ascii":
		return input, nil
	}
	return nil, fmt.Errorf("unsupported device charset %q", label)
}

// expectOK treats a missing or non-1 Result as a refusal.
func expectOK(op string, rows []row) error {
	for _, r := range rows {
		if strings.TrimSpace(r.Result) == "1" {
			return nil
		}
	}
	info := "no result"
	if len(rows) > 0 && rows[0].Information != "" {
		info = rows[0].Information
	}
	return ErrDeviceRejected.Clone().WithMetadata(map[string]any{"operation": op, "information": info})
}

// Ping reads the device clock, which every firmware answers.
func (c *Client) Ping(ctx context.Context, d Device) (time.Time, error) {
	rows, err := c.call(ctx, d, newCommand("GetDate", d))
	if err != nil {
		return time.Time{}, err
	}
	for _, r := range rows {
		raw := strings.TrimSpace(r.DateTime)
		if raw == "" && r.Date != "" {
			raw = strings.TrimSpace(r.Date + " " + r.Time)
		}
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation(timeLayout, raw, d.location())
		if err != nil {
			return time.Time{}, fmt.Errorf("parse device time %q: %w", raw, err)
		}
		return t, nil
	}
	return time.Time{}, ErrDeviceRejected.Clone().WithMetadata(map[string]any{"operation": "GetDate"})
}

// AttendanceLogs returns every punch stored on the device. Rows that cannot
// be parsed are skipped.
func (c *Client) AttendanceLogs(ctx context.Context, d Device) ([]Punch, error) {
	rows, err := c.call(ctx, d, newCommand("GetAttLog", d, field("PIN", "All")))
	if err != nil {
		return nil, err
	}
	punches := make([]Punch, 0, len(rows))
	for _, r := range rows {
		pin := strings.TrimSpace(r.PIN)
		if pin == "" {
			continue
		}
		t, err := time.ParseInLocation(timeLayout, strings.TrimSpace(r.DateTime), d.location())
		if err != nil {
			continue
		}
		verify, _ := strconv.Atoi(strings.TrimSpace(r.Verified))
		inout, _ := strconv.Atoi(strings.TrimSpace(r.Status))
		punches = append(punches, Punch{PIN: pin, Time: t, VerifyMode: verify, InOutMode: inout})
	}
	return punches, nil
}

func (c *Client) SetUser(ctx context.Context, d Device, u User) error {
	rows, err := c.call(ctx, d, newCommand("SetUserInfo", d, field("PIN", u.PIN), field("Name", u.Name)))
	if err != nil {
		return err
	}
	return expectOK("SetUserInfo", rows)
}

func (c *Client) DeleteUser(ctx context.Context, d Device, pin string) error {
	rows, err := c.call(ctx, d, newCommand("DeleteUser", d, field("PIN", pin)))
	if err != nil {
		return err
	}
	return expectOK("DeleteUser", rows)
}

func (c *Client) Restart(ctx context.Context, d Device) error {
	rows, err := c.call(ctx, d, newCommand("Restart", d))
	if err != nil {
		return err
	}
	return expectOK("Restart", rows)
}

// ClearAttendance wipes punch records from the device.
func (c *Client) ClearAttendance(ctx context.Context, d Device) error {
	rows, err := c.call(ctx, d, newCommand("ClearData", d, field("Value", strconv.Itoa(clearAttendanceLogs))))
	if err != nil {
		return err
	}
	return expectOK("ClearData", rows)
}

// SetTime writes t, converted to the device location, to the terminal clock.
func (c *Client) SetTime(ctx context.Context, d Device, t time.Time) error {
	local := t.In(d.location())
	rows, err := c.call(ctx, d, newCommand("SetDate", d,
		field("Date", local.Format("2006-01-02")),
		field("Time", local.Format("15:04:05")),
	))
	if err != nil {
		return err
	}
	return expectOK("SetDate", rows)
}
