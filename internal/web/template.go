package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/weather433/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ago": func(now, then time.Time) string {
		return now.Sub(then).Truncate(time.Second).String() + " ago"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Weather 433</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.low { color: red; font-weight: bold; }
.none { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Weather 433</h1>

<h2>Last Reading</h2>
{{with .LastReading}}<table>
<tr><th>Sensor</th><td id="sensor">{{.SensorAddress}}</td></tr>
<tr><th>Channel</th><td>{{.Channel}}</td></tr>
<tr><th>Temperature</th><td id="temp">{{printf "%.1f" .TemperatureC}} &deg;C ({{printf "%.1f" .TemperatureF}} &deg;F)</td></tr>
<tr><th>Humidity</th><td id="humidity">{{.Humidity}} %</td></tr>
<tr><th>Battery</th><td{{if .BatteryLow}} class="low"{{end}}>{{if .BatteryLow}}low{{else}}ok{{end}}</td></tr>
<tr><th>Received</th><td>{{ago $.Now $.LastReadingAt}} ({{$.LastOutcome}})</td></tr>
</table>{{else}}<p class="none">No frames received yet.</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic</th><td>{{.Config.Topic}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Receiver</h2>
<table>
<tr><th>Preambles</th><td>{{.Counts.Preambles}}</td></tr>
<tr><th>Resyncs</th><td>{{.Counts.Resyncs}}</td></tr>
<tr><th>Aborted frames</th><td>{{.Counts.Aborts}}</td></tr>
<tr><th>Frames</th><td>{{.Counts.Frames}}</td></tr>
<tr><th>Published</th><td id="published">{{.Counts.Published}}</td></tr>
<tr><th>Duplicates</th><td>{{.Counts.Duplicates}}</td></tr>
<tr><th>Publish retries</th><td>{{.Counts.PublishRetries}}</td></tr>
<tr><th>Publish failures</th><td>{{.Counts.PublishFailures}}</td></tr>
<tr><th>Dropped offline</th><td>{{.Counts.Offline}}</td></tr>
<tr><th>Suppressed edges</th><td>{{.Counts.SuppressedEdges}}</td></tr>
<tr><th>Dropped edges</th><td>{{.Counts.DroppedEdges}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Boot ID</th><td>{{.BootID}}</td></tr>
<tr><th>Source</th><td>{{.Config.Source}}</td></tr>
<tr><th>Zero window</th><td>{{.Config.ZeroWindow}}</td></tr>
<tr><th>Dedup window</th><td>{{.Config.DedupWindowMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
