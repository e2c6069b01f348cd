package notify

import (
	"bytes"
	"html/template"
	"strings"
)

// Message is one outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// FeedbackNotice describes a viewer reaction that the trip owner is told about.
type FeedbackNotice struct {
	To            string
	TripName      string
	ActivityTitle string
	ViewerName    string
	Liked         bool
	Comment       string
	ReportURL     string
}

var feedbackTemplate = template.Must(template.New("feedback").Parse(`<div style="font-family: sans-serif; max-width: 560px;">
<h2>New feedback on {{.TripName}}</h2>
<p><strong>{{.Viewer}}</strong> {{if .Liked}}liked{{else}}disliked{{end}} <strong>{{.ActivityTitle}}</strong>.</p>
{{- if .Comment}}
<blockquote style="border-left: 3px solid #ccc; margin: 0; padding-left: 12px;">{{.Comment}}</blockquote>
{{- end}}
{{- if .ReportURL}}
<p><a href="{{.ReportURL}}">View all feedback</a></p>
{{- end}}
</div>`))

// FeedbackMessage renders the owner notification for notice.
func FeedbackMessage(notice FeedbackNotice) (Message, error) {
	viewer := strings.TrimSpace(notice.ViewerName)
	if viewer == "" {
		viewer = "Someone"
	}
	activity := strings.TrimSpace(notice.ActivityTitle)
	if activity == "" {
		activity = "an activity"
	}

	var body bytes.Buffer
	err := feedbackTemplate.Execute(&body, struct {
		TripName      string
		Viewer        string
		ActivityTitle string
		Liked         bool
		Comment       string
		ReportURL     string
	}{
		TripName:      notice.TripName,
		Viewer:        viewer,
		ActivityTitle: activity,
		Liked:         notice.Liked,
		Comment:       strings.TrimSpace(notice.Comment),
		ReportURL:     notice.ReportURL,
	})
	if err != nil {
		return Message{}, err
	}

	verb := "disliked"
	if notice.Liked {
		verb = "liked"
	}
	return Message{
		To:      notice.To,
		Subject: viewer + " " + verb + " " + activity + " in " + notice.TripName,
		HTML:    body.String(),
	}, nil
}
