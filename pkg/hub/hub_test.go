package hub

import (
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gorilla "github.com/gorilla/websocket"
)

func serve(t *testing.T, h *Hub, greeting ...Message) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		NewClient(h, c, greeting...).Run()
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go app.Listener(ln)
	go h.Run()
	t.Cleanup(func() {
		h.Close()
		app.Shutdown()
	})
	return "ws://" + ln.Addr().String() + "/ws"
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGreetingThenBroadcast(t *testing.T) {
	h := New("test")
	url := serve(t, h, NewJSONMessage([]byte(`{"hello":true}`)))
	conn := dial(t, url)

	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if typ != gorilla.TextMessage || string(data) != `{"hello":true}` {
		t.Errorf("greeting = %d %s", typ, data)
	}

	if err := h.BroadcastJSON(map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if string(data) != `{"n":1}` {
		t.Errorf("broadcast = %s", data)
	}
}

func TestBinaryBroadcast(t *testing.T) {
	h := New("camera")
	url := serve(t, h)
	conn := dial(t, url)
	waitClients(t, h, 1)

	h.BroadcastBinary([]byte{0xff, 0xd8})
	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if typ != gorilla.BinaryMessage || len(data) != 2 {
		t.Errorf("got type %d, %d bytes", typ, len(data))
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	h := New("test")
	url := serve(t, h)
	conn := dial(t, url)
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)
}

func TestDisconnectChurn(t *testing.T) {
	h := New("churn")
	url := serve(t, h)

	for i := 0; i < 200; i++ {
		conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		h.BroadcastBinary([]byte{byte(i)})
		conn.Close()
	}
	waitClients(t, h, 0)

	// The hub still serves a fresh client after the churn.
	conn := dial(t, url)
	waitClients(t, h, 1)
	if err := h.BroadcastJSON(map[string]string{"after": "churn"}); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"after":"churn"}` {
		t.Errorf("got %s", data)
	}
}

func TestRunWaitsForWriter(t *testing.T) {
	h := New("wait")
	returned := make(chan struct{})
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		cl := NewClient(h, c)
		cl.Run()
		select {
		case <-cl.writerDone:
		default:
			t.Error("Run returned while the writer was still running")
		}
		close(returned)
	}))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go app.Listener(ln)
	go h.Run()
	t.Cleanup(func() {
		h.Close()
		app.Shutdown()
	})

	conn := dial(t, "ws://"+ln.Addr().String()+"/ws")
	waitClients(t, h, 1)
	conn.Close()

	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after disconnect")
	}
}
