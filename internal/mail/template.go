package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

// TurnEmail is the data of a turn notification email.
type TurnEmail struct {
	AppName string
	Kind    string
	GameURL string
	GameID  uint
	Title   string
	Status  string
	Round   string
	Turn    int
	Players []string
	Acting  []string
	Actions []string // one line per action, oldest first
}

var turnTemplate = template.Must(template.New("turn").Parse(`<!DOCTYPE html>
<html>
<body>
<h2>{{.Kind}}: {{.Title}} #{{.GameID}}</h2>
<p>Round {{.Round}}, turn {{.Turn}} ({{.Status}})</p>
<p>Players: {{range $i, $p := .Players}}{{if $i}}, {{end}}{{$p}}{{end}}</p>
{{if .Acting}}<p>Acting: {{range $i, $p := .Acting}}{{if $i}}, {{end}}{{$p}}{{end}}</p>{{end}}
{{if .Actions}}<h3>Recent actions</h3>
<ol>{{range .Actions}}
<li>{{.}}</li>{{end}}
</ol>{{end}}
<p><a href="{{.GameURL}}">Open the game</a></p>
<p style="color:#888">{{.AppName}}</p>
</body>
</html>
`))

// maxListedActions caps how much history goes into one email.
const maxListedActions = 20

// RenderTurn renders the HTML body of a turn notification.
func RenderTurn(data TurnEmail) (string, error) {
	if n := len(data.Actions); n > maxListedActions {
		data.Actions = data.Actions[n-maxListedActions:]
	}
	var buf bytes.Buffer
	if err := turnTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mail: render turn email: %w", err)
	}
	return buf.String(), nil
}
