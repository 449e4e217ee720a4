package cdp

import (
	"encoding/json"
	"fmt"
)

// socketHook keeps a list of the page's open WebSockets so frames can be
// written on them later. It is installed once per document.
const socketHook = `(() => {
  if (window.__apiInspectorSockets) return;
  const open = [];
  window.__apiInspectorSockets = open;
  const Native = window.WebSocket;
  window.WebSocket = new Proxy(Native, {
    construct(target, args) {
      const ws = new target(...args);
      open.push(ws);
      ws.addEventListener('close', () => {
        const i = open.indexOf(ws);
        if (i >= 0) open.splice(i, 1);
      });
      return ws;
    }
  });
})()`

const sendScript = `((url, payload) => {
  const list = window.__apiInspectorSockets || [];
  for (let i = list.length - 1; i >= 0; i--) {
    const ws = list[i];
    if (ws.url === url && ws.readyState === 1) {
      ws.send(payload);
      return true;
    }
  }
  return false;
})(%s, %s)`

// sendExpression builds the script writing payload on the newest open socket
// whose URL is url.
func sendExpression(url, payload string) (string, error) {
	u, err := json.Marshal(url)
	if err != nil {
		return "", err
	}
	p, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(sendScript, u, p), nil
}
