package terminal

import (
	"context"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/apperr"
)

const attLogResponse = `<?xml version="1.0" encoding="iso8859-1" standalone="no"?>
<GetAttLogResponse>
<Row><PIN>1001</PIN><DateTime>2025-03-03 08:10:00</DateTime><Verified>1</Verified><Status>0</Status><WorkCode>0</WorkCode></Row>
<Row><PIN>1001</PIN><DateTime>2025-03-03 17:30:12</DateTime><Verified>1</Verified><Status>1</Status><WorkCode>0</WorkCode></Row>
<Row><PIN>2002</PIN><DateTime>not a date</DateTime><Verified>1</Verified><Status>0</Status></Row>
<Row><PIN></PIN><DateTime>2025-03-03 09:00:00</DateTime></Row>
</GetAttLogResponse>`

type fakeDevice struct {
	t        *testing.T
	bodies   []string
	replies  map[string]string
	comKey   string
	httpCode int
}

func (f *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	require.Equal(f.t, http.MethodPost, r.Method)
	require.Equal(f.t, servicePath, r.URL.Path)
	raw, _ := io.ReadAll(r.Body)
	body := string(raw)
	f.bodies = append(f.bodies, body)
	f.comKey = between(body, "<ArgComKey>", "</ArgComKey>")

	if f.httpCode != 0 {
		w.WriteHeader(f.httpCode)
		return
	}
	for cmd, reply := range f.replies {
		if strings.HasPrefix(body, "<"+cmd+">") {
			_, _ = io.WriteString(w, reply)
			return
		}
	}
	w.WriteHeader(http.StatusBadRequest)
}

func between(s, open, close string) string {
	i := strings.Index(s, open)
	j := strings.Index(s, close)
	if i < 0 || j < i {
		return ""
	}
	return s[i+len(open) : j]
}

func startDevice(t *testing.T, f *fakeDevice) Device {
	t.Helper()
	f.t = t
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return Device{Host: host, Port: port, CommKey: "", Location: time.UTC}
}

func TestClient_AttendanceLogs(t *testing.T) {
	f := &fakeDevice{replies: map[string]string{"GetAttLog": attLogResponse}}
	d := startDevice(t, f)

	punches, err := NewClient(time.Second).AttendanceLogs(context.Background(), d)
	require.NoError(t, err)

	require.Len(t, punches, 2, "unparseable and pin-less rows are skipped")
	assert.Equal(t, "1001", punches[0].PIN)
	assert.Equal(t, time.Date(2025, 3, 3, 8, 10, 0, 0, time.UTC), punches[0].Time)
	assert.Equal(t, 1, punches[0].VerifyMode)
	assert.Equal(t, 1, punches[1].InOutMode)

	assert.Equal(t, "0", f.comKey, "blank comm key defaults to 0")
	assert.Contains(t, f.bodies[0], "<Arg><PIN>All</PIN></Arg>")
}

func TestClient_SetUserSuccessAndRejection(t *testing.T) {
	f := &fakeDevice{replies: map[string]string{
		"SetUserInfo": `<SetUserInfoResponse><Row><Result>1</Result><Information>Successfully!</Information></Row></SetUserInfoResponse>`,
		"DeleteUser":  `<DeleteUserResponse><Row><Result>0</Result><Information>User not found</Information></Row></DeleteUserResponse>`,
	}}
	d := startDevice(t, f)
	d.CommKey = "1234"
	c := NewClient(time.Second)

	require.NoError(t, c.SetUser(context.Background(), d, User{PIN: "1001", Name: "Linh & Co"}))
	assert.Equal(t, "1234", f.comKey)
	assert.Contains(t, f.bodies[0], "<Name>Linh &amp; Co</Name>")

	err := c.DeleteUser(context.Background(), d, "1001")
	require.Error(t, err)
	assert.Equal(t, "DEVICE_REJECTED", apperr.Code(err))
	assert.True(t, Rejected(err))
}

func TestClient_ClearAndSetTime(t *testing.T) {
	ok := `<R><Row><Result>1</Result></Row></R>`
	f := &fakeDevice{replies: map[string]string{"ClearData": ok, "SetDate": ok, "Restart": ok}}
	d := startDevice(t, f)
	c := NewClient(time.Second)

	require.NoError(t, c.ClearAttendance(context.Background(), d))
	assert.Contains(t, f.bodies[0], "<Value>3</Value>")

	require.NoError(t, c.SetTime(context.Background(), d, time.Date(2025, 3, 3, 1, 2, 3, 0, time.UTC)))
	assert.Contains(t, f.bodies[1], "<Date>2025-03-03</Date><Time>01:02:03</Time>")

	require.NoError(t, c.Restart(context.Background(), d))
	assert.NotContains(t, f.bodies[2], "<Arg>")
}

func TestClient_Ping(t *testing.T) {
	f := &fakeDevice{replies: map[string]string{
		"GetDate": `<GetDateResponse><Row><Date>2025-03-03</Date><Time>07:59:58</Time></Row></GetDateResponse>`,
	}}
	d := startDevice(t, f)

	got, err := NewClient(time.Second).Ping(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 3, 7, 59, 58, 0, time.UTC), got)
}

func TestClient_TransportFailures(t *testing.T) {
	f := &fakeDevice{httpCode: http.StatusInternalServerError}
	d := startDevice(t, f)
	_, err := NewClient(time.Second).AttendanceLogs(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.False(t, Rejected(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewClient(time.Second).Restart(ctx, d)
	require.Error(t, err)
}

func TestNewCommand_Encoding(t *testing.T) {
	d := Device{}

	bare, err := xml.Marshal(newCommand("Restart", d))
	require.NoError(t, err)
	assert.Equal(t, "<Restart><ArgComKey>0</ArgComKey></Restart>", string(bare))

	withArgs, err := xml.Marshal(newCommand("DeleteUser", d, field("PIN", "1001")))
	require.NoError(t, err)
	assert.Equal(t, "<DeleteUser><ArgComKey>0</ArgComKey><Arg><PIN>1001</PIN></Arg></DeleteUser>", string(withArgs))
}
