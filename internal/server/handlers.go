package server

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// WebSocketHandler upgrades GET requests on /ws and registers the resulting
// client with the hub, which starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	client := NewClient(conn, s.hub, s.gate, s.cfg, r.RemoteAddr, r.URL.RawQuery)
	if !s.hub.Register(client) {
		client.cancel()
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("closing rejected connection", zap.Error(err))
		}
	}
}

// HealthHandler provides a simple health check endpoint.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chatgate is running (%d connections)\n", s.hub.ClientCount())
}

// TestPageHandler serves a browser page that speaks the frame protocol: it
// opens a session with a bearer token, subscribes to a room and sends
// chat messages to it.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>chatgate WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        button:disabled { background-color: #999; cursor: default; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .error { color: #721c24; }
        .info { color: #555; }
    </style>
</head>
<body>
    <h1>chatgate WebSocket Test</h1>
    <div id="status" class="status disconnected">Disconnected</div>
    <div>
        <input type="text" id="tokenInput" placeholder="Bearer token (empty for anonymous)">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px;">
        <input type="text" id="roomInput" value="/topic/chat/lobby">
        <button id="subscribeButton" onclick="subscribe()" disabled>Subscribe</button>
    </div>
    <div id="messages"></div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let subCounter = 0;
        const messages = document.getElementById('messages');
        const status = document.getElementById('status');
        const controls = ['subscribeButton', 'sendButton', 'messageInput'].map(id => document.getElementById(id));

        function addMessage(text, type = 'info') {
            const div = document.createElement('div');
            div.className = type;
            div.textContent = '[' + new Date().toLocaleTimeString() + '] ' + text;
            messages.appendChild(div);
            messages.scrollTop = messages.scrollHeight;
        }

        function send(frame) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(frame));
            }
        }

        function setConnected(connected) {
            status.textContent = connected ? 'Connected' : 'Disconnected';
            status.className = 'status ' + (connected ? 'connected' : 'disconnected');
            document.getElementById('connectButton').textContent = connected ? 'Disconnect' : 'Connect';
            controls.forEach(el => el.disabled = !connected);
        }

        function onFrame(frame) {
            const headers = frame.headers || {};
            switch (frame.command) {
            case 'CONNECTED':
                setConnected(true);
                addMessage('session ' + headers.session + ' opened as ' + (headers['user-name'] || 'anonymous'));
                break;
            case 'MESSAGE':
                const msg = frame.body || {};
                addMessage(frame.destination + ' ' + msg.sender + ': ' + msg.content, 'message');
                break;
            case 'RECEIPT':
                addMessage('receipt ' + headers['receipt-id']);
                break;
            case 'ERROR':
                addMessage('error: ' + headers.message, 'error');
                break;
            }
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() {
                const token = document.getElementById('tokenInput').value.trim();
                const headers = token ? { Authorization: 'Bearer ' + token } : {};
                send({ command: 'CONNECT', headers: headers });
            };
            ws.onmessage = function(event) { onFrame(JSON.parse(event.data)); };
            ws.onclose = function() {
                setConnected(false);
                addMessage('connection closed');
                ws = null;
            };
            ws.onerror = function() { addMessage('websocket error', 'error'); };
        }

        function toggleConnection() {
            if (ws) {
                send({ command: 'DISCONNECT' });
                ws.close();
            } else {
                connect();
            }
        }

        function subscribe() {
            const room = document.getElementById('roomInput').value.trim();
            subCounter++;
            send({ command: 'SUBSCRIBE', destination: room, headers: { id: 'sub-' + subCounter, receipt: 'sub-' + subCounter } });
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            const content = input.value.trim();
            if (!content) {
                return;
            }
            const room = document.getElementById('roomInput').value.trim();
            send({ command: 'SEND', destination: room, body: { content: content, type: 'TALK' } });
            input.value = '';
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
