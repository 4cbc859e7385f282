package hcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/hetznercloud/hcloud-go/v2/hcloud/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hdistcc/internal/config"
	"github.com/imamik/hdistcc/internal/fleet"
)

// testServer mocks the Hetzner Cloud API.
type testServer struct {
	server *httptest.Server
	mux    *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mux := http.NewServeMux()
	ts := &testServer{server: httptest.NewServer(mux), mux: mux}
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client(opts ...ClientOption) *Client {
	hc := hcloud.NewClient(
		hcloud.WithToken("test-token"),
		hcloud.WithEndpoint(ts.server.URL),
	)
	base := []ClientOption{
		WithHCloudClient(hc),
		WithTimeouts(&config.Timeouts{
			Node:              30 * time.Second,
			ImageWait:         10 * time.Second,
			RetryMaxAttempts:  3,
			RetryInitialDelay: 10 * time.Millisecond,
		}),
	}
	return New("test-token", append(base, opts...)...)
}

func (ts *testServer) handleFunc(pattern string, handler http.HandlerFunc) {
	ts.mux.HandleFunc(pattern, handler)
}

// jsonResponse writes a JSON response with the given status code and body.
func jsonResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func apiError(w http.ResponseWriter, statusCode int, code hcloud.ErrorCode) {
	jsonResponse(w, statusCode, map[string]any{
		"error": map[string]any{"code": string(code), "message": string(code)},
	})
}

func serverJSON(id int64, name, status, location, ipv4, ipv6 string) map[string]any {
	return map[string]any{
		"id":     id,
		"name":   name,
		"status": status,
		"datacenter": map[string]any{
			"name":     location + "-dc1",
			"location": map[string]any{"name": location},
		},
		"location": map[string]any{"name": location},
		"public_net": map[string]any{
			"ipv4": map[string]any{"ip": ipv4},
			"ipv6": map[string]any{"ip": ipv6},
		},
		"server_type": map[string]any{"name": "cx22"},
		"labels":      map[string]string{},
	}
}

func TestClient_ListNodes(t *testing.T) {
	ts := newTestServer(t)
	ts.handleFunc("/servers", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{
			"servers": []any{
				serverJSON(1, "hdistcc-ubuntu-1", "running", "fsn1", "203.0.113.1", "2a01:4f8::/64"),
				serverJSON(2, "hdistcc-ubuntu-2", "initializing", "fsn1", "", "2a01:4f8:1::/64"),
				serverJSON(3, "hdistcc-ubuntu-3", "running", "nbg1", "203.0.113.3", ""),
			},
		})
	})

	nodes, err := ts.client().ListNodes(context.Background(), "proj", "fsn1")
	require.NoError(t, err)
	assert.Equal(t, []fleet.NodeStatus{
		{Name: "hdistcc-ubuntu-1", Status: "RUNNING", Address: "203.0.113.1"},
		{Name: "hdistcc-ubuntu-2", Status: "INITIALIZING", Address: "2a01:4f8:1::1"},
	}, nodes)
}

func TestClient_ListNodes_APIError(t *testing.T) {
	ts := newTestServer(t)
	ts.handleFunc("/servers", func(w http.ResponseWriter, _ *http.Request) {
		apiError(w, http.StatusUnauthorized, hcloud.ErrorCode("unauthorized"))
	})

	_, err := ts.client().ListNodes(context.Background(), "proj", "fsn1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list servers")
}

func TestClient_CreateNode(t *testing.T) {
	ts := newTestServer(t)
	ts.handleFunc("/server_types", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{
			"server_types": []any{map[string]any{"id": 22, "name": "cx22", "architecture": "x86"}},
		})
	})
	ts.handleFunc("/locations", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{
			"locations": []any{map[string]any{"id": 1, "name": "fsn1"}},
		})
	})
	ts.handleFunc("/ssh_keys", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{
			SSHKeys: []schema.SSHKey{{ID: 7, Name: "hdistcc-ubuntu-1a2b3c4d"}},
		})
	})

	var body map[string]any
	ts.handleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		jsonResponse(w, http.StatusCreated, map[string]any{
			"server":       serverJSON(42, "hdistcc-ubuntu-1a2b3c4d-1", "initializing", "fsn1", "", ""),
			"action":       map[string]any{"id": 10, "status": "running", "command": "create_server"},
			"next_actions": []any{map[string]any{"id": 11, "status": "running", "command": "start_server"}},
		})
	})

	op, err := ts.client().CreateNode(context.Background(), "proj", "fsn1", fleet.NodeSpec{
		Name:          "hdistcc-ubuntu-1a2b3c4d-1",
		Image:         "161547269",
		MachineType:   "cx22",
		StartupScript: "#!/bin/sh\necho ok\n",
		Network:       fleet.NetworkConfig{PublicIPv4: true, PublicIPv6: true},
		SSHKeys:       []string{"hdistcc-ubuntu-1a2b3c4d"},
		Labels:        map[string]string{"hdistcc.io/fleet": "hdistcc-ubuntu-1a2b3c4d"},
	})
	require.NoError(t, err)
	assert.Equal(t, fleet.Operation{ID: "10,11", Kind: "create"}, op)

	assert.Equal(t, "hdistcc-ubuntu-1a2b3c4d-1", body["name"])
	assert.Equal(t, "#!/bin/sh\necho ok\n", body["user_data"])
	assert.EqualValues(t, 161547269, body["image"])
	assert.Equal(t, map[string]any{"hdistcc.io/fleet": "hdistcc-ubuntu-1a2b3c4d"}, body["labels"])
}

func TestClient_CreateNode_InvalidInputIsNotRetried(t *testing.T) {
	ts := newTestServer(t)
	ts.handleFunc("/server_types", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{
			"server_types": []any{map[string]any{"id": 22, "name": "cx22"}},
		})
	})
	ts.handleFunc("/locations", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{
			"locations": []any{map[string]any{"id": 1, "name": "fsn1"}},
		})
	})
	posts := 0
	ts.handleFunc("/servers", func(w http.ResponseWriter, _ *http.Request) {
		posts++
		apiError(w, http.StatusUnprocessableEntity, hcloud.ErrorCodeInvalidInput)
	})

	_, err := ts.client().CreateNode(context.Background(), "proj", "fsn1", fleet.NodeSpec{
		Name: "n-1", Image: "ubuntu-24.04", MachineType: "cx22",
	})
	require.Error(t, err)
	assert.True(t, isInvalidParameter(err))
	assert.Equal(t, 1, posts)
}

func TestClient_CreateNode_UnknownServerType(t *testing.T) {
	ts := newTestServer(t)
	ts.handleFunc("/server_types", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{"server_types": []any{}})
	})

	_, err := ts.client().CreateNode(context.Background(), "proj", "fsn1", fleet.NodeSpec{
		Name: "n-1", Image: "ubuntu-24.04", MachineType: "cx999",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server type not found: cx999")
}

func TestClient_DeleteNode(t *testing.T) {
	ts := newTestServer(t)
	ts.handleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		servers := []any{}
		if r.URL.Query().Get("name") == "hdistcc-ubuntu-1" {
			servers = append(servers, serverJSON(789, "hdistcc-ubuntu-1", "running", "fsn1", "203.0.113.9", ""))
		}
		jsonResponse(w, http.StatusOK, map[string]any{"servers": servers})
	})
	locked := true
	ts.handleFunc("/servers/789", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		if locked {
			locked = false
			apiError(w, http.StatusLocked, hcloud.ErrorCodeLocked)
			return
		}
		jsonResponse(w, http.StatusOK, schema.ServerDeleteResponse{
			Action: schema.Action{ID: 5, Status: "running", Command: "delete_server"},
		})
	})

	client := ts.client()
	ctx := context.Background()

	t.Run("existing server", func(t *testing.T) {
		op, err := client.DeleteNode(ctx, "proj", "fsn1", "hdistcc-ubuntu-1")
		require.NoError(t, err)
		assert.Equal(t, fleet.Operation{ID: "5", Kind: "delete"}, op)
	})

	t.Run("missing server", func(t *testing.T) {
		_, err := client.DeleteNode(ctx, "proj", "fsn1", "hdistcc-ubuntu-2")
		assert.ErrorIs(t, err, fleet.ErrNodeNotFound)
	})

	t.Run("server in another zone", func(t *testing.T) {
		_, err := client.DeleteNode(ctx, "proj", "nbg1", "hdistcc-ubuntu-1")
		assert.ErrorIs(t, err, fleet.ErrNodeNotFound)
	})
}

func TestClient_PollOperation(t *testing.T) {
	ts := newTestServer(t)
	status := map[int64]string{1: "success", 2: "running", 3: "error"}
	ts.handleFunc("/actions/", func(w http.ResponseWriter, r *http.Request) {
		var id int64
		_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/actions/"), "%d", &id)
		s, ok := status[id]
		if !ok {
			apiError(w, http.StatusNotFound, hcloud.ErrorCodeNotFound)
			return
		}
		action := schema.Action{ID: id, Status: s, Command: "create_server"}
		if s == "error" {
			action.Error = &schema.ActionError{Code: "server_error", Message: "host failed"}
		}
		jsonResponse(w, http.StatusOK, schema.ActionGetResponse{Action: action})
	})

	client := ts.client()
	ctx := context.Background()

	tests := []struct {
		name    string
		id      string
		want    fleet.OperationStatus
		wantErr bool
	}{
		{name: "empty id is complete", id: "", want: fleet.OperationStatus{Done: true}},
		{name: "single success", id: "1", want: fleet.OperationStatus{Done: true}},
		{name: "one still running", id: "1,2", want: fleet.OperationStatus{Done: false}},
		{name: "error wins", id: "2,3", want: fleet.OperationStatus{Done: true, Error: "create_server: host failed (server_error)"}},
		{name: "malformed", id: "x", want: fleet.OperationStatus{Done: true, Error: `malformed operation id "x": strconv.ParseInt: parsing "x": invalid syntax`}},
		{name: "unknown action", id: "99", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.PollOperation(ctx, "proj", "fsn1", fleet.Operation{ID: tt.id})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_ResolveImage(t *testing.T) {
	ts := newTestServer(t)
	ts.handleFunc("/images", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		images := []any{}
		switch {
		case q.Get("name") == "ubuntu-24.04" && q.Get("architecture") == "x86":
			images = append(images, map[string]any{"id": 161547269, "name": "ubuntu-24.04", "type": "system", "status": "available", "architecture": "x86"})
		case q.Get("label_selector") == "hdistcc.io/family=distcc-ubuntu":
			assert.Equal(t, "snapshot", q.Get("type"))
			images = append(images,
				map[string]any{"id": 900, "type": "snapshot", "status": "available", "architecture": "x86"},
				map[string]any{"id": 800, "type": "snapshot", "status": "available", "architecture": "x86"},
			)
		}
		jsonResponse(w, http.StatusOK, map[string]any{"images": images})
	})

	client := ts.client()
	ctx := context.Background()

	id, err := client.ResolveImage(ctx, OwnerSystem, "ubuntu-24.04")
	require.NoError(t, err)
	assert.Equal(t, "161547269", id)

	id, err = client.ResolveImage(ctx, OwnerSnapshot, "distcc-ubuntu")
	require.NoError(t, err)
	assert.Equal(t, "900", id)

	_, err = client.ResolveImage(ctx, OwnerSystem, "plan9")
	assert.ErrorIs(t, err, ErrImageNotFound)

	_, err = client.ResolveImage(ctx, "vendor", "ubuntu-24.04")
	assert.ErrorContains(t, err, "unsupported image owner")
}

func TestClient_EnsureSSHKey(t *testing.T) {
	const pub = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIExample op@host"

	t.Run("creates missing key", func(t *testing.T) {
		ts := newTestServer(t)
		created := false
		ts.handleFunc("/ssh_keys", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				var req schema.SSHKeyCreateRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "fleet", req.Name)
				assert.Equal(t, pub, req.PublicKey)
				created = true
				jsonResponse(w, http.StatusCreated, schema.SSHKeyCreateResponse{
					SSHKey: schema.SSHKey{ID: 1, Name: req.Name, PublicKey: req.PublicKey},
				})
				return
			}
			jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{SSHKeys: []schema.SSHKey{}})
		})

		require.NoError(t, ts.client().EnsureSSHKey(context.Background(), "fleet", pub, nil))
		assert.True(t, created)
	})

	t.Run("keeps matching key", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handleFunc("/ssh_keys", func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodGet, r.Method)
			jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{
				SSHKeys: []schema.SSHKey{{ID: 1, Name: "fleet", PublicKey: "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIExample other-comment"}},
			})
		})

		require.NoError(t, ts.client().EnsureSSHKey(context.Background(), "fleet", pub, nil))
	})

	t.Run("rejects different key", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handleFunc("/ssh_keys", func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{
				SSHKeys: []schema.SSHKey{{ID: 1, Name: "fleet", PublicKey: "ssh-rsa AAAAB3Nza other"}},
			})
		})

		err := ts.client().EnsureSSHKey(context.Background(), "fleet", pub, nil)
		assert.ErrorContains(t, err, "different public key")
	})
}

func TestClient_DeleteSSHKey(t *testing.T) {
	ts := newTestServer(t)
	deleted := 0
	ts.handleFunc("/ssh_keys", func(w http.ResponseWriter, r *http.Request) {
		keys := []schema.SSHKey{}
		if r.URL.Query().Get("name") == "fleet" {
			keys = append(keys, schema.SSHKey{ID: 3, Name: "fleet"})
		}
		jsonResponse(w, http.StatusOK, schema.SSHKeyListResponse{SSHKeys: keys})
	})
	ts.handleFunc("/ssh_keys/3", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deleted++
		w.WriteHeader(http.StatusNoContent)
	})

	client := ts.client()
	require.NoError(t, client.DeleteSSHKey(context.Background(), "fleet"))
	require.NoError(t, client.DeleteSSHKey(context.Background(), "gone"))
	assert.Equal(t, 1, deleted)
}

func TestClient_EnsureFirewall_Create(t *testing.T) {
	ts := newTestServer(t)
	var req map[string]any
	ts.handleFunc("/firewalls", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			jsonResponse(w, http.StatusCreated, map[string]any{
				"firewall": map[string]any{
					"id":   5,
					"name": "fleet",
					"applied_to": []any{map[string]any{
						"type":           "label_selector",
						"label_selector": map[string]any{"selector": "hdistcc.io/fleet=fleet"},
					}},
				},
				"actions":  []any{},
			})
			return
		}
		jsonResponse(w, http.StatusOK, map[string]any{"firewalls": []any{}})
	})

	err := ts.client().EnsureFirewall(context.Background(), "fleet", []string{"198.51.100.7", "2001:db8::/48"}, nil)
	require.NoError(t, err)

	rules, ok := req["rules"].([]any)
	require.True(t, ok)
	require.Len(t, rules, 2)
	ssh := rules[0].(map[string]any)
	assert.Equal(t, "in", ssh["direction"])
	assert.Equal(t, "tcp", ssh["protocol"])
	assert.Equal(t, "22", ssh["port"])
	assert.Equal(t, []any{"198.51.100.7/32", "2001:db8::/48"}, ssh["source_ips"])

	applyTo, ok := req["apply_to"].([]any)
	require.True(t, ok)
	require.Len(t, applyTo, 1)
	assert.Equal(t, map[string]any{"selector": "hdistcc.io/fleet=fleet"}, applyTo[0].(map[string]any)["label_selector"])
}

func TestClient_EnsureFirewall_InvalidSource(t *testing.T) {
	ts := newTestServer(t)
	err := ts.client().EnsureFirewall(context.Background(), "fleet", []string{"not-an-ip"}, nil)
	assert.ErrorContains(t, err, "invalid firewall source")

	err = ts.client().EnsureFirewall(context.Background(), "fleet", nil, nil)
	assert.ErrorContains(t, err, "at least one source")
}

func TestClient_DeleteFirewall(t *testing.T) {
	ts := newTestServer(t)
	ts.handleFunc("/firewalls", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{
			"firewalls": []any{map[string]any{"id": 5, "name": "fleet"}},
		})
	})
	calls := 0
	ts.handleFunc("/firewalls/5", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		calls++
		if calls == 1 {
			apiError(w, http.StatusConflict, hcloud.ErrorCode("resource_in_use"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	err := ts.client().DeleteFirewall(context.Background(), "fleet")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	var apiErr hcloud.Error
	assert.True(t, errors.As(err, &apiErr))
}

func TestClient_PublicIP(t *testing.T) {
	ipsrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, "198.51.100.7")
	}))
	t.Cleanup(ipsrv.Close)

	ts := newTestServer(t)
	ip, err := ts.client(WithPublicIPURL(ipsrv.URL)).PublicIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", ip)
}

func TestClient_PublicIP_RejectsBadResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "server error", status: http.StatusBadGateway, body: "198.51.100.7", wantErr: "502 Bad Gateway"},
		{name: "html body", status: http.StatusOK, body: "<html>rate limited</html>", wantErr: "no IPv4 address"},
		{name: "ipv6", status: http.StatusOK, body: "2001:db8::1", wantErr: "no IPv4 address"},
		{name: "empty", status: http.StatusOK, body: "", wantErr: "no IPv4 address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ipsrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprint(w, tt.body)
			}))
			t.Cleanup(ipsrv.Close)

			ts := newTestServer(t)
			ip, err := ts.client(WithPublicIPURL(ipsrv.URL)).PublicIP(context.Background())
			require.ErrorContains(t, err, tt.wantErr)
			assert.Empty(t, ip)
		})
	}
}

func TestActionsOperation(t *testing.T) {
	op := actionsOperation("create", &hcloud.Action{ID: 1}, nil, &hcloud.Action{ID: 3})
	assert.Equal(t, fleet.Operation{ID: "1,3", Kind: "create"}, op)
	assert.Equal(t, fleet.Operation{Kind: "delete"}, actionsOperation("delete"))

	ids, err := parseActionIDs("1, 3")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestClient_MachineTypes(t *testing.T) {
	ts := newTestServer(t)
	ts.handleFunc("/server_types", func(w http.ResponseWriter, _ *http.Request) {
		priced := func(loc, hourly string) []any {
			return []any{map[string]any{
				"location":      loc,
				"price_hourly":  map[string]any{"net": hourly, "gross": hourly},
				"price_monthly": map[string]any{"net": "1", "gross": "1"},
			}}
		}
		jsonResponse(w, http.StatusOK, map[string]any{
			"server_types": []any{
				map[string]any{"id": 2, "name": "cx32", "cores": 4, "memory": 8, "cpu_type": "shared", "architecture": "x86", "prices": priced("fsn1", "0.0110")},
				map[string]any{"id": 1, "name": "cx22", "cores": 2, "memory": 4, "cpu_type": "shared", "architecture": "x86", "prices": priced("fsn1", "0.0060")},
				map[string]any{"id": 3, "name": "ccx13", "cores": 2, "memory": 8, "cpu_type": "dedicated", "architecture": "x86", "prices": priced("fsn1", "0.0200")},
				map[string]any{"id": 4, "name": "cax11", "cores": 2, "memory": 4, "cpu_type": "shared", "architecture": "arm", "prices": priced("ash", "0.0050")},
			},
		})
	})

	opts, err := ts.client().MachineTypes(context.Background(), "fsn1")
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, "cx22", opts[0].Name)
	assert.Equal(t, "CX22 - 2 vCPU, 4GB RAM (~€0.0060/h)", opts[0].Label)
	assert.Equal(t, "cx32", opts[1].Name)
}
