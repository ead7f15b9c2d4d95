package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"roomcast/client"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"ROOMCAST_SERVER_ADDR,default=localhost:8080"`
	Room          string `env:"ROOMCAST_ROOM,default=lobby"`
	AgentID       string `env:"ROOMCAST_AGENT_ID"`
	Name          string `env:"ROOMCAST_NAME"`
	Avatar        string `env:"ROOMCAST_AVATAR"`
	LogLevel      string `env:"LOG_LEVEL,default=WARN"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the reconnection controller to a small line-oriented terminal
// UI. Type to talk; /agents prints the roster; /quit leaves.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if config.AgentID == "" {
		config.AgentID = uuid.NewString()
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent := client.Agent{AgentID: config.AgentID, Name: config.Name, Avatar: config.Avatar}
	controller := client.NewController(
		client.WebsocketDialer{BaseURL: "ws://" + config.ServerAddress, Room: config.Room, Agent: agent},
		client.HTTPFetcher{BaseURL: "http://" + config.ServerAddress, Room: config.Room},
		renderEvent,
		client.Options{},
		log,
	)
	controller.Start(ctx)
	defer controller.Stop()

	color.Green.Printf(">>> Joined room %q on %s as %s (Ctrl+C to quit)\n",
		config.Room, config.ServerAddress, config.AgentID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			color.Yellow.Println("Leaving room...")
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			switch strings.TrimSpace(line) {
			case "":
			case "/quit":
				return exitOK, nil
			case "/agents":
				if err := printRoster(ctx, config.ServerAddress, config.Room); err != nil {
					color.Red.Printf("Roster unavailable: %v\n", err)
				}
			default:
				if err := controller.SendMessage(line); err != nil {
					color.Red.Printf("Not delivered: %v\n", err)
				}
			}
		}
	}
}

func renderEvent(e client.Event) {
	switch e.Type {
	case "message":
		color.Cyan.Printf("%s %s: %s\n", e.Agent.Avatar, e.Agent.Name, e.Content)
	case "join":
		color.Green.Printf("%s %s joined\n", e.Agent.Avatar, e.Agent.Name)
	case "leave":
		color.Yellow.Printf("%s %s left\n", e.Agent.Avatar, e.Agent.Name)
	case "typing":
		color.Gray.Printf("%s is typing...\n", e.Agent.Name)
	case "agents":
		renderRosterTable(e.Agents)
	case "error":
		color.Red.Printf("Server rejected a frame: %s\n", e.Content)
	}
}

func renderRosterTable(agents []client.Agent) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Agent", "Name", "Avatar"})
	for _, a := range agents {
		table.Append([]string{a.AgentID, a.Name, a.Avatar})
	}
	table.Render()
}

// printRoster queries presence over REST, which works even while the push
// connection is down.
func printRoster(ctx context.Context, serverAddress, room string) error {
	target := fmt.Sprintf("http://%s/rooms/%s/agents", serverAddress, url.PathEscape(room))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("roster endpoint answered %d", response.StatusCode)
	}

	var body struct {
		Agents []client.Agent `json:"agents"`
	}
	if err := json.NewDecoder(response.Body).Decode(&body); err != nil {
		return err
	}
	renderRosterTable(body.Agents)
	return nil
}
