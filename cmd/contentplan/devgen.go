package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/draftforge/contentplan/internal/genservice"
)

// devGeneratorAddr is where the in-process canned backend listens.
const devGeneratorAddr = ":9090"

// newDevGenerator returns a canned generation backend for local development.
// It produces fixed outputs that satisfy the built-in pipeline's rubrics, so
// a session can run end to end without a real model behind it.
func newDevGenerator() genservice.Handler {
	return genservice.HandlerFunc(func(ctx context.Context, req genservice.GenerateRequest) (*genservice.GenerateResult, error) {
		output, ok := devOutputs[req.StageID]
		if !ok {
			return nil, fmt.Errorf("dev generator: no canned output for stage %q", req.StageID)
		}
		return &genservice.GenerateResult{
			StageID: req.StageID,
			Output:  json.RawMessage(output),
			Model:   "dev-canned",
		}, nil
	})
}

// devOutputs holds one canned output per built-in stage.
var devOutputs = map[string]string{
	"brand-brief": `{
		"brand_name": "Draftforge",
		"voice": "practical, direct, lightly irreverent",
		"positioning": "Draftforge helps small product teams publish consistently by turning a one-line brief into a full content plan, from audience research to ready-to-edit drafts, without hiring an agency."
	}`,
	"audience-personas": `{
		"personas": [
			{"name": "Indie founder", "goals": "grow an audience before launch", "channels": ["x", "linkedin"]},
			{"name": "Developer advocate", "goals": "keep a steady cadence of technical posts", "channels": ["blog", "youtube"]},
			{"name": "Solo marketer", "goals": "cover many channels with little time", "channels": ["newsletter", "linkedin"]}
		]
	}`,
	"content-themes": `{
		"themes": [
			{"id": "build-in-public", "title": "Build in public"},
			{"id": "customer-stories", "title": "Customer stories"},
			{"id": "how-we-work", "title": "How we work"}
		],
		"theme_ids": ["build-in-public", "customer-stories", "how-we-work"]
	}`,
	"calendar-outline": `{
		"entries": [
			{"week": 1, "slot": "mon", "theme": "build-in-public"},
			{"week": 1, "slot": "thu", "theme": "customer-stories"},
			{"week": 2, "slot": "mon", "theme": "how-we-work"},
			{"week": 2, "slot": "thu", "theme": "build-in-public"},
			{"week": 3, "slot": "mon", "theme": "customer-stories"},
			{"week": 3, "slot": "thu", "theme": "how-we-work"},
			{"week": 4, "slot": "mon", "theme": "build-in-public"},
			{"week": 4, "slot": "thu", "theme": "customer-stories"}
		],
		"theme_ids": ["build-in-public", "customer-stories", "how-we-work"]
	}`,
	"post-drafts": `{
		"drafts": [
			{"slot": "w1-mon", "title": "Why we rebuilt our planner", "body": "Draft body."},
			{"slot": "w1-thu", "title": "How Mira ships weekly", "body": "Draft body."},
			{"slot": "w2-mon", "title": "Our review ritual", "body": "Draft body."},
			{"slot": "w2-thu", "title": "Month one metrics", "body": "Draft body."},
			{"slot": "w3-mon", "title": "A customer's first week", "body": "Draft body."},
			{"slot": "w3-thu", "title": "Inside our roadmap call", "body": "Draft body."},
			{"slot": "w4-mon", "title": "What we got wrong", "body": "Draft body."},
			{"slot": "w4-thu", "title": "From brief to calendar", "body": "Draft body."}
		]
	}`,
}
