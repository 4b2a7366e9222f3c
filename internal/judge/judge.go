// internal/judge/judge.go
//
// Client for the external scoring service. The orchestrator calls it once,
// after a session reaches natural completion, and treats any failure as
// non-fatal: a fallback verdict is produced from locally accumulated scores
// so a debate always resolves to an outcome.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Winner values in a verdict.
const (
	WinnerFor     = "for"
	WinnerAgainst = "against"
	WinnerTie     = "tie"
)

// Breakdown itemizes one side's score across the judging criteria.
type Breakdown struct {
	ArgumentQuality int `json:"argumentQuality"`
	LogicReasoning  int `json:"logicReasoning"`
	EvidenceFacts   int `json:"evidenceFacts"`
	Rebuttal        int `json:"rebuttal"`
	Persuasiveness  int `json:"persuasiveness"`
}

// Verdict is the structured outcome of a judged debate.
type Verdict struct {
	ForScore         int       `json:"forScore"`
	AgainstScore     int       `json:"againstScore"`
	Winner           string    `json:"winner"`
	Reasoning        string    `json:"reasoning"`
	ForBreakdown     Breakdown `json:"forBreakdown"`
	AgainstBreakdown Breakdown `json:"againstBreakdown"`
}

// Argument is one transcript entry handed to the judge.
type Argument struct {
	Stance  string
	Content string
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewClientFromEnv builds a client from JUDGE_API_KEY / JUDGE_BASE_URL /
// JUDGE_MODEL. An empty key disables the client; callers check Enabled.
func NewClientFromEnv() *Client {
	baseURL := os.Getenv("JUDGE_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := os.Getenv("JUDGE_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  os.Getenv("JUDGE_API_KEY"),
		model:   model,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether the client is configured to make calls.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Evaluate submits the full transcript and returns the judge's verdict.
func (c *Client) Evaluate(ctx context.Context, arguments []Argument) (*Verdict, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("judge client not configured")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildTranscriptPrompt(arguments)},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("judge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("judge returned status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("failed to decode judge response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("judge returned no choices")
	}

	return parseVerdict(chat.Choices[0].Message.Content)
}

const systemPrompt = `You are a professional debate judge with expertise in competitive debate formats. Evaluate both sides rigorously on argument quality (0-30), logic and reasoning (0-25), evidence and support (0-25), rebuttal and clash (0-10), and persuasiveness (0-10). Be critical; a total of 70+ indicates excellent performance. Respond ONLY with a JSON object of the form:
{"forScore":0,"againstScore":0,"winner":"for|against|tie","reasoning":"...","forBreakdown":{"argumentQuality":0,"logicReasoning":0,"evidenceFacts":0,"rebuttal":0,"persuasiveness":0},"againstBreakdown":{"argumentQuality":0,"logicReasoning":0,"evidenceFacts":0,"rebuttal":0,"persuasiveness":0}}`

func buildTranscriptPrompt(arguments []Argument) string {
	var b strings.Builder
	b.WriteString("Judge this debate transcript. Arguments alternate between the FOR and AGAINST positions.\n")
	forIdx, againstIdx := 0, 0
	for _, arg := range arguments {
		if arg.Content == "" {
			continue // timed-out turns carry no content
		}
		switch arg.Stance {
		case WinnerFor:
			forIdx++
			fmt.Fprintf(&b, "\nFOR argument %d: %s\n", forIdx, arg.Content)
		default:
			againstIdx++
			fmt.Fprintf(&b, "\nAGAINST argument %d: %s\n", againstIdx, arg.Content)
		}
	}
	return b.String()
}

// parseVerdict extracts the JSON object from the model's reply, tolerating
// surrounding prose or markdown fences.
func parseVerdict(content string) (*Verdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in judge reply")
	}

	var v Verdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("failed to parse verdict: %w", err)
	}
	switch v.Winner {
	case WinnerFor, WinnerAgainst, WinnerTie:
	default:
		return nil, fmt.Errorf("judge returned unknown winner %q", v.Winner)
	}
	return &v, nil
}

// Fallback compares locally accumulated scores to produce a verdict when
// the judge is unreachable.
func Fallback(forScore, againstScore int) *Verdict {
	winner := WinnerTie
	switch {
	case forScore > againstScore:
		winner = WinnerFor
	case againstScore > forScore:
		winner = WinnerAgainst
	}
	return &Verdict{
		ForScore:     forScore,
		AgainstScore: againstScore,
		Winner:       winner,
		Reasoning:    "Scored locally from argument length and response time; the judge service was unavailable.",
	}
}
