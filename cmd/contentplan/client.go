package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/draftforge/contentplan/internal/api"
	"github.com/draftforge/contentplan/internal/pipeline"
	"github.com/draftforge/contentplan/internal/status"
)

// clientTimeout bounds the non-streaming client commands.
const clientTimeout = 10 * time.Second

// runStatus prints one session's stage table.
func runStatus(server, sessionID string) error {
	var snap pipeline.SessionSnapshot
	if err := getJSON(server+"/v1/sessions/"+sessionID, &snap); err != nil {
		return err
	}
	fmt.Print(status.FormatSnapshot(&snap))
	return nil
}

// runList prints one line per session.
func runList(server string) error {
	var body struct {
		Sessions []pipeline.SessionSnapshot `json:"sessions"`
	}
	if err := getJSON(server+"/v1/sessions", &body); err != nil {
		return err
	}
	fmt.Print(status.FormatSessionList(body.Sessions))
	return nil
}

// runWatch streams a session's progress events until the session finishes.
func runWatch(server, sessionID string) error {
	ctx := context.Background()

	resp, err := http.Get(server + "/v1/sessions/" + sessionID + "/stream")
	if err != nil {
		return fmt.Errorf("connect to event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("event stream returned %s", resp.Status)
	}

	for sev := range api.ReadEvents(ctx, resp.Body) {
		if sev.Err != nil {
			fmt.Printf("stream error: %v\n", sev.Err)
			continue
		}
		fmt.Println(status.FormatEvent(sev.Event))
	}
	return nil
}

// getJSON fetches url and decodes the JSON response into v.
func getJSON(url string, v any) error {
	client := &http.Client{Timeout: clientTimeout}

	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
