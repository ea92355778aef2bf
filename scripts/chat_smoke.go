package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fatih/color"
)

const baseURL = "http://localhost:3000/api"

// Pretty print JSON helper
func prettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}

// Request helper
func sendRequest(method, url string, body interface{}) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+url, bodyReader)
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{} // No timeout, turns can stream for a while
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp, respBody, err
}

func main() {
	color.Cyan("🚀 Starting Chat Gateway Smoke Test\n")

	// 1. New chat
	color.Yellow("\n1. Start a new chat")
	resp, body, err := sendRequest("POST", "/chat/v1/new", nil)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)

	// 2. Send a turn
	color.Yellow("\n2. Send a message")
	resp, body, err = sendRequest("POST", "/chat/v1/turn", map[string]interface{}{
		"message": "Give me a quick summary of this quarter's sales data",
	})
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var turnResp map[string]interface{}
	json.Unmarshal(body, &turnResp)
	prettyPrint(turnResp)

	// 3. List sessions
	color.Yellow("\n3. List sessions")
	resp, body, err = sendRequest("GET", "/chat/v1/sessions", nil)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var sessionsResp map[string]interface{}
	json.Unmarshal(body, &sessionsResp)
	prettyPrint(sessionsResp)

	// 4. Busy rejection while nothing streams should NOT trigger
	color.Yellow("\n4. Fetch transcript")
	resp, body, err = sendRequest("GET", "/chat/v1/transcript", nil)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var transcriptResp map[string]interface{}
	json.Unmarshal(body, &transcriptResp)
	prettyPrint(transcriptResp)

	color.Cyan("\n✅ Smoke test finished")
}
