package platform

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rennerdo30/remipn/internal/connection"
	"github.com/rennerdo30/remipn/internal/logging"
)

// fakeRunner returns canned results keyed by the full command line.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]Result
	errs    map[string]error
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: make(map[string]Result),
		errs:    make(map[string]error),
	}
}

func (f *fakeRunner) on(cmdline string, res Result) *fakeRunner {
	f.results[cmdline] = res
	return f
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmdline)
	if err, ok := f.errs[cmdline]; ok {
		return Result{}, err
	}
	if res, ok := f.results[cmdline]; ok {
		return res, nil
	}
	return Result{ExitCode: 127, Stderr: "unexpected command: " + cmdline}, nil
}

func (f *fakeRunner) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

const (
	nmcliList   = "nmcli -t -f NAME,TYPE,STATE,IP4.ADDRESS connection show --active"
	nmcliStatus = "nmcli -t -f NAME,STATE connection show --active"
)

func TestNetworkManager_ListActive(t *testing.T) {
	out := strings.Join([]string{
		"Wired connection 1:802-3-ethernet:activated:192.168.1.10/24",
		"Work VPN:vpn:activated:10.0.0.5/32",
		"wg0:wireguard:activated:10.8.0.2/24 | 10.8.0.3/24",
		`Lab\:East:vpn:activated:`,
		"short:vpn",
		"",
	}, "\n")
	r := newFakeRunner().on(nmcliList, Result{Stdout: out})
	n := NewNetworkManager(r, logging.Discard())

	active, err := n.ListActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []connection.ActiveConnection{
		{Name: "Work VPN", IP: "10.0.0.5"},
		{Name: "wg0", IP: "10.8.0.2"},
		{Name: "Lab:East"},
	}, active)
}

func TestNetworkManager_ListActiveFailure(t *testing.T) {
	r := newFakeRunner().on(nmcliList, Result{ExitCode: 8, Stderr: "NetworkManager is not running.\n"})
	n := NewNetworkManager(r, logging.Discard())

	_, err := n.ListActive(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NetworkManager is not running.")

	r.errs[nmcliList] = errors.New("executable file not found")
	_, err = n.ListActive(context.Background())
	require.Error(t, err)
}

func TestNetworkManager_StatusOf(t *testing.T) {
	out := "work:activated\nhome:activating\nlab:deactivating\n"
	r := newFakeRunner().on(nmcliStatus, Result{Stdout: out})
	n := NewNetworkManager(r, logging.Discard())
	ctx := context.Background()

	assert.Equal(t, connection.Connected(), n.StatusOf(ctx, "work"))
	assert.Equal(t, connection.Connecting(), n.StatusOf(ctx, "home"))
	assert.Equal(t, connection.Disconnecting(), n.StatusOf(ctx, "lab"))
	assert.Equal(t, connection.Disconnected(), n.StatusOf(ctx, "missing"))
}

func TestNetworkManager_ConnectDisconnect(t *testing.T) {
	r := newFakeRunner().
		on("nmcli connection up work", Result{}).
		on("nmcli connection down work", Result{}).
		on("nmcli connection up broken", Result{ExitCode: 4, Stderr: "Error: Connection activation failed: Secrets were required\n"}).
		on("nmcli connection down quiet", Result{ExitCode: 10})
	n := NewNetworkManager(r, logging.Discard())
	ctx := context.Background()

	require.NoError(t, n.Connect(ctx, connection.Profile{Name: "work"}))
	require.NoError(t, n.Disconnect(ctx, "work"))

	err := n.Connect(ctx, connection.Profile{Name: "broken"})
	require.Error(t, err)
	assert.Equal(t, "failed to connect: Error: Connection activation failed: Secrets were required", err.Error())

	err = n.Disconnect(ctx, "quiet")
	require.Error(t, err)
	assert.Equal(t, "failed to disconnect: exit status 10", err.Error())
}

func TestSplitTerse(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a:b:c", []string{"a", "b", "c"}},
		{`a\:b:c`, []string{"a:b", "c"}},
		{`a\\:b`, []string{`a\`, "b"}},
		{"a::", []string{"a", "", ""}},
		{"", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, splitTerse(tt.in))
		})
	}
}

const scutilList = `Available network connection services in the current set (*=enabled):
* (Disconnected)   3C6E1F0A-0000-0000-0000-000000000001 PPP --> L2TP       "Home L2TP"                      [PPP/L2TP]
* (Connected)      3C6E1F0A-0000-0000-0000-000000000002 VPN (com.microsoft.azurevpn) "Azure Work"   [VPN/Azure VPN Client]
`

const ifconfigOut = `lo0: flags=8049<UP,LOOPBACK,RUNNING,MULTICAST> mtu 16384
	inet 127.0.0.1 netmask 0xff000000
en0: flags=8863<UP,BROADCAST,SMART,RUNNING,SIMPLEX,MULTICAST> mtu 1500
	inet 192.168.1.20 netmask 0xffffff00 broadcast 192.168.1.255
utun0: flags=8051<UP,POINTOPOINT,RUNNING,MULTICAST> mtu 1380
	inet6 fe80::1%utun0 prefixlen 64 scopeid 0x10
utun3: flags=8051<UP,POINTOPOINT,RUNNING,MULTICAST> mtu 1400
	inet 10.20.0.7 --> 10.20.0.7 netmask 0xffffffff
`

func TestSCUtil_ListActive(t *testing.T) {
	r := newFakeRunner().
		on("scutil --nc list", Result{Stdout: scutilList}).
		on("ifconfig", Result{Stdout: ifconfigOut})
	s := NewSCUtil(r, logging.Discard())

	active, err := s.ListActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []connection.ActiveConnection{{Name: "Azure Work", IP: "10.20.0.7"}}, active)
}

func TestSCUtil_ListActiveNoneSkipsIfconfig(t *testing.T) {
	r := newFakeRunner().on("scutil --nc list", Result{Stdout: "Available network connection services in the current set (*=enabled):\n"})
	s := NewSCUtil(r, logging.Discard())

	active, err := s.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, []string{"scutil --nc list"}, r.called())
}

func TestSCUtil_StatusOf(t *testing.T) {
	tests := []struct {
		out  string
		want connection.Status
	}{
		{"Connected\nExtended Status <dictionary> {", connection.Connected()},
		{"Connecting\n", connection.Connecting()},
		{"Disconnecting\n", connection.Disconnecting()},
		{"Disconnected\n", connection.Disconnected()},
		{"No service\n", connection.Disconnected()},
	}
	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			r := newFakeRunner().on("scutil --nc status work", Result{Stdout: tt.out})
			s := NewSCUtil(r, logging.Discard())
			assert.Equal(t, tt.want, s.StatusOf(context.Background(), "work"))
		})
	}
}

func TestSCUtil_Connect(t *testing.T) {
	ctx := context.Background()

	t.Run("success with user", func(t *testing.T) {
		r := newFakeRunner().on("scutil --nc start work --user alice", Result{})
		s := NewSCUtil(r, logging.Discard())
		require.NoError(t, s.Connect(ctx, connection.Profile{Name: "work", Username: "alice"}))
	})

	t.Run("no service", func(t *testing.T) {
		r := newFakeRunner().on("scutil --nc start work", Result{ExitCode: 1, Stdout: "No service\n"})
		s := NewSCUtil(r, logging.Discard())
		err := s.Connect(ctx, connection.Profile{Name: "work"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoService)
		assert.Contains(t, err.Error(), `"work"`)
	})

	t.Run("auth required", func(t *testing.T) {
		r := newFakeRunner().on("scutil --nc start work", Result{ExitCode: 1, Stderr: "User Authentication failed"})
		s := NewSCUtil(r, logging.Discard())
		err := s.Connect(ctx, connection.Profile{Name: "work"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAuthRequired)
		assert.Contains(t, err.Error(), "scutil --nc start 'work'")
	})

	t.Run("other failure", func(t *testing.T) {
		r := newFakeRunner().on("scutil --nc start work", Result{ExitCode: 1, Stderr: "busy"})
		s := NewSCUtil(r, logging.Discard())
		err := s.Connect(ctx, connection.Profile{Name: "work"})
		require.Error(t, err)
		assert.Equal(t, "failed to connect: busy", err.Error())
	})
}

func TestRasDial(t *testing.T) {
	list := "Connected to\r\nOffice VPN\r\nCommand completed successfully.\r\n"
	r := newFakeRunner().
		on("rasdial", Result{Stdout: list}).
		on("rasdial Office VPN bob", Result{}).
		on("rasdial Office VPN /disconnect", Result{})
	d := NewRasDial(r, logging.Discard())
	ctx := context.Background()

	active, err := d.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []connection.ActiveConnection{{Name: "Office VPN"}}, active)

	assert.Equal(t, connection.Connected(), d.StatusOf(ctx, "Office VPN"))
	assert.Equal(t, connection.Disconnected(), d.StatusOf(ctx, "Home"))

	require.NoError(t, d.Connect(ctx, connection.Profile{Name: "Office VPN", Username: "bob"}))
	require.NoError(t, d.Disconnect(ctx, "Office VPN"))
}

func TestRasDial_NoConnections(t *testing.T) {
	assert.Empty(t, parseRasDialList("No connections\nCommand completed successfully.\n"))
}

func TestUnsupported(t *testing.T) {
	u := Unsupported{}
	ctx := context.Background()

	active, err := u.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.ErrorIs(t, u.Connect(ctx, connection.Profile{Name: "x"}), ErrUnsupportedPlatform)
	assert.ErrorIs(t, u.Disconnect(ctx, "x"), ErrUnsupportedPlatform)
	assert.Equal(t, connection.Disconnected(), u.StatusOf(ctx, "x"))
}

func TestForName(t *testing.T) {
	r := newFakeRunner()

	tests := []struct {
		name string
		want string
	}{
		{"nmcli", BackendNMCLI},
		{"SCUTIL", BackendSCUtil},
		{" rasdial ", BackendRasDial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ForName(tt.name, r, logging.Discard())
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Name())
		})
	}

	_, err := ForName("netplan", r, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "netplan")
}

func TestDetect(t *testing.T) {
	a, err := ForName("", newFakeRunner(), logging.Discard())
	require.NoError(t, err)

	switch runtime.GOOS {
	case "linux":
		assert.Equal(t, BackendNMCLI, a.Name())
	case "darwin":
		assert.Equal(t, BackendSCUtil, a.Name())
	case "windows":
		assert.Equal(t, BackendRasDial, a.Name())
	default:
		assert.IsType(t, Unsupported{}, a)
	}
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}
	r := NewExecRunner(logging.Discard())
	ctx := context.Background()

	res, err := r.Run(ctx, "sh", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Success())

	_, err = r.Run(ctx, "remipn-definitely-not-a-command")
	require.Error(t, err)
}
