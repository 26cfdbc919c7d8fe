package network

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ppiankov/scrapenet/internal/httputil"
	"github.com/ppiankov/scrapenet/internal/model"
)

func neuronFor(t *testing.T, uid int, serverURL string) model.Neuron {
	t.Helper()
	host, port, err := net.SplitHostPort(serverURL[len("http://"):])
	if err != nil {
		t.Fatalf("split %s: %v", serverURL, err)
	}
	p, _ := strconv.Atoi(port)
	return model.Neuron{UID: uid, IP: host, Port: p}
}

func TestQuerier_AlignsAnswers(t *testing.T) {
	var gotReq Request
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scrape/reddit" {
			t.Errorf("Expected /scrape/reddit, got %s", r.URL.Path)
		}
		if r.Header.Get("X-Validator-Hotkey") != "5Hot" {
			t.Errorf("Expected hotkey header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = io.WriteString(w, `[{"id":"t3_a"}]`)
	}))
	defer good.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	axons := []model.Neuron{
		neuronFor(t, 4, failing.URL),
		neuronFor(t, 7, good.URL),
		neuronFor(t, 9, slow.URL),
	}

	q := NewQuerier(nil, 3, "5Hot")
	start := time.Now()
	out := q.Query(context.Background(), axons, Request{Platform: model.PlatformReddit, SearchKey: "tao", Version: "2.2.0"}, 100*time.Millisecond)

	if time.Since(start) > time.Second {
		t.Error("Expected the slow peer to be cut off by the timeout")
	}
	if len(out) != 3 {
		t.Fatalf("Expected 3 answers, got %d", len(out))
	}
	if out[0] != nil || out[2] != nil {
		t.Errorf("Expected nil for failing and slow peers, got %s / %s", out[0], out[2])
	}
	if string(out[1]) != `[{"id":"t3_a"}]` {
		t.Errorf("Unexpected body %s", out[1])
	}
	if gotReq.SearchKey != "tao" || gotReq.Version != "2.2.0" || gotReq.Platform != model.PlatformReddit {
		t.Errorf("Unexpected request %+v", gotReq)
	}
}

func TestQuerier_NoAxons(t *testing.T) {
	q := NewQuerier(nil, 2, "")
	if out := q.Query(context.Background(), nil, Request{Platform: model.PlatformTwitter}, time.Second); len(out) != 0 {
		t.Errorf("Expected no answers, got %d", len(out))
	}
}

func TestAxonURL(t *testing.T) {
	if got := AxonURL(model.Neuron{IP: "10.0.0.1", Port: 8091}); got != "http://10.0.0.1:8091" {
		t.Errorf("Unexpected url %s", got)
	}
	if got := AxonURL(model.Neuron{IP: "::1", Port: 80}); got != "http://[::1]:80" {
		t.Errorf("Unexpected ipv6 url %s", got)
	}
}

func newBridge(t *testing.T) (*httptest.Server, *weightsRequest) {
	t.Helper()
	var posted weightsRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/metagraph", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("netuid") != "3" {
			t.Errorf("Expected netuid 3, got %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"netuid":3,"block":500,"neurons":[
			{"uid":0,"hotkey":"5Val","ip":"1.2.3.4","port":8091},
			{"uid":1,"hotkey":"5Miner","ip":"0.0.0.0","port":0}
		]}`)
	})
	mux.HandleFunc("/block", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"block":1234}`)
	})
	mux.HandleFunc("/weights", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&posted)
		if posted.Hotkey == "5Nobody" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"error":"hotkey not registered"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return httptest.NewServer(mux), &posted
}

func TestBridgeClient_MetagraphAndBlock(t *testing.T) {
	server, _ := newBridge(t)
	defer server.Close()

	c := NewBridgeClient(server.URL+"/", 3, "5Val", "2.2.0", nil)
	mg, err := c.Metagraph(context.Background())
	if err != nil {
		t.Fatalf("Metagraph: %v", err)
	}
	if mg.Size() != 2 || len(mg.ReachableUIDs()) != 1 {
		t.Errorf("Unexpected metagraph %+v", mg)
	}

	block, err := c.Block(context.Background())
	if err != nil || block != 1234 {
		t.Errorf("Expected block 1234, got %d (%v)", block, err)
	}

	uid, err := RegisteredUID(context.Background(), c, "5Val")
	if err != nil || uid != 0 {
		t.Errorf("Expected uid 0, got %d (%v)", uid, err)
	}
	if _, err := RegisteredUID(context.Background(), c, "5Nobody"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Expected ErrNotRegistered, got %v", err)
	}
}

func TestBridgeClient_SetWeights(t *testing.T) {
	server, posted := newBridge(t)
	defer server.Close()

	c := NewBridgeClient(server.URL, 3, "5Val", "2.2.0", nil)
	if err := c.SetWeights(context.Background(), []int{0, 1}, []float64{0.25, 0.75}); err != nil {
		t.Fatalf("SetWeights: %v", err)
	}
	if posted.NetUID != 3 || len(posted.UIDs) != 2 || posted.Weights[1] != 0.75 || posted.Version != "2.2.0" {
		t.Errorf("Unexpected payload %+v", *posted)
	}

	if err := c.SetWeights(context.Background(), []int{0}, nil); err == nil {
		t.Error("Expected error for misaligned weights")
	}

	rejected := NewBridgeClient(server.URL, 3, "5Nobody", "", nil)
	if err := rejected.SetWeights(context.Background(), []int{0}, []float64{1}); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Expected ErrNotRegistered, got %v", err)
	}
}

func TestBridgeClient_ServerError(t *testing.T) {
	prev := httputil.RetryBaseDelay
	httputil.RetryBaseDelay = time.Millisecond
	defer func() { httputil.RetryBaseDelay = prev }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "syncing")
	}))
	defer server.Close()

	c := NewBridgeClient(server.URL, 3, "5Val", "", nil)
	if _, err := c.Block(context.Background()); err == nil {
		t.Error("Expected error for unavailable bridge")
	}
}

func TestBridgeClient_RejectsShuffledMetagraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"neurons":[{"uid":1},{"uid":0}]}`)
	}))
	defer server.Close()

	c := NewBridgeClient(server.URL, 3, "5Val", "", nil)
	if _, err := c.Metagraph(context.Background()); err == nil {
		t.Error("Expected error for neurons out of uid order")
	}
}
