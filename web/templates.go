package web

import (
	"html/template"
	"net/http"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Balanza</title>
    <meta charset="utf-8">
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background-color: #f5f5f5; }
        .card { background: white; padding: 20px; margin: 10px auto; max-width: 900px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .weight { font-size: 64px; font-family: monospace; text-align: center; }
        .stable { color: #4CAF50; }
        .unstable { color: #f44336; }
        .log { height: 240px; overflow-y: scroll; background-color: #000; color: #0f0; padding: 10px; font-family: monospace; font-size: 12px; }
    </style>
</head>
<body>
    <div class="card">
        <p>Port: <span id="port">{{.Port}}</span> · <span id="state">{{.State}}</span>{{if .MockMode}} · mock{{end}}</p>
        <div id="weight" class="weight unstable">-</div>
    </div>
    <div class="card">
        <div id="log" class="log"></div>
    </div>
    <script>
        function line(text) {
            const log = document.getElementById('log');
            const entry = document.createElement('div');
            entry.textContent = text;
            log.appendChild(entry);
            log.scrollTop = log.scrollHeight;
            while (log.children.length > 500) {
                log.removeChild(log.firstChild);
            }
        }

        function connectToScale() {
            const source = new EventSource('/scale/stream');
            source.onmessage = function(event) {
                const ev = JSON.parse(event.data);
                switch (ev.type) {
                case 'weightData':
                    const el = document.getElementById('weight');
                    el.textContent = ev.reading.weight.toFixed(2) + ' kg';
                    el.className = 'weight ' + (ev.reading.isStable ? 'stable' : 'unstable');
                    break;
                case 'connected':
                case 'disconnected':
                case 'error':
                    document.getElementById('state').textContent = ev.type;
                    line('[' + ev.type + '] ' + (ev.message || ''));
                    break;
                case 'messageProcessed':
                    line('frame ' + JSON.stringify(ev.frame.text));
                    break;
                }
            };
            source.onerror = function() {
                source.close();
                setTimeout(connectToScale, 5000);
            };
        }

        connectToScale();
    </script>
</body>
</html>
`))

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, s.link.Status()); err != nil {
		s.log.Error().Err(err).Msg("rendering index")
	}
}
