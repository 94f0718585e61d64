package adapter

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"time"

	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
)

var (
	ErrExternalUnavailable = goerr.New("external project system unavailable")
)

// ProjectSystem is the authoritative external project system. The core
// must function with this collaborator entirely absent (nil client),
// degrading to local-only mode.
type ProjectSystem interface {
	// ListProjects returns all projects known to the external system
	ListProjects(ctx context.Context) ([]*model.ExternalProject, error)

	// GetProject returns structured detail for a single project
	GetProject(ctx context.Context, id string) (*model.ProjectDetail, error)

	// HashStatus returns the self-describing hash tree for change detection
	HashStatus(ctx context.Context, query string) (*model.HashTree, error)
}

// ProjectSystemConfig configures the MCP connection to the external system
type ProjectSystemConfig struct {
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   []string          `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
	Timeout   time.Duration     `yaml:"timeout"`
}

// LoadProjectSystemConfig reads a yaml config file. An empty path yields
// a nil config, meaning local-only mode.
func LoadProjectSystemConfig(path string) (*ProjectSystemConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read project system config", goerr.V("path", path))
	}
	var cfg ProjectSystemConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse project system config", goerr.V("path", path))
	}
	return &cfg, nil
}

// MCPProjectSystem implements ProjectSystem against an MCP server exposing
// list_projects, get_project and hash_status tools.
type MCPProjectSystem struct {
	session *mcp.ClientSession
	timeout time.Duration
}

// NewMCPProjectSystem connects to the configured MCP server
func NewMCPProjectSystem(ctx context.Context, cfg *ProjectSystemConfig) (*MCPProjectSystem, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "cony",
		Version: "0.1.0",
	}, nil)

	var transport mcp.Transport
	switch cfg.Transport {
	case "stdio":
		if len(cfg.Command) == 0 {
			return nil, goerr.New("command is required for stdio transport")
		}
		cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
		if len(cfg.Env) > 0 {
			env := cmd.Env
			for k, v := range cfg.Env {
				env = append(env, k+"="+v)
			}
			cmd.Env = env
		}
		transport = &mcp.CommandTransport{Command: cmd}
	case "http":
		if cfg.URL == "" {
			return nil, goerr.New("url is required for http transport")
		}
		transport = &mcp.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return nil, goerr.New("unsupported transport",
			goerr.V("transport", cfg.Transport),
			goerr.V("supported", []string{"stdio", "http"}))
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to project system")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &MCPProjectSystem{
		session: session,
		timeout: timeout,
	}, nil
}

// Close terminates the MCP session
func (p *MCPProjectSystem) Close() error {
	return p.session.Close()
}

func (p *MCPProjectSystem) ListProjects(ctx context.Context) ([]*model.ExternalProject, error) {
	var out struct {
		Projects []*model.ExternalProject `json:"projects"`
	}
	if err := p.call(ctx, "list_projects", nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (p *MCPProjectSystem) GetProject(ctx context.Context, id string) (*model.ProjectDetail, error) {
	var out model.ProjectDetail
	if err := p.call(ctx, "get_project", map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *MCPProjectSystem) HashStatus(ctx context.Context, query string) (*model.HashTree, error) {
	var out model.HashTree
	args := map[string]any{}
	if query != "" {
		args["query"] = query
	}
	if err := p.call(ctx, "hash_status", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call invokes an MCP tool under the per-call timeout and decodes the
// first text content block as JSON.
func (p *MCPProjectSystem) call(ctx context.Context, tool string, args map[string]any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return goerr.Wrap(ErrExternalUnavailable, "tool call failed",
			goerr.V("tool", tool), goerr.V("cause", err.Error()))
	}
	if result.IsError {
		return goerr.Wrap(ErrExternalUnavailable, "tool returned error", goerr.V("tool", tool))
	}

	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			if err := json.Unmarshal([]byte(text.Text), out); err != nil {
				return goerr.Wrap(err, "failed to decode tool response", goerr.V("tool", tool))
			}
			return nil
		}
	}
	return goerr.Wrap(ErrExternalUnavailable, "no text content in tool response", goerr.V("tool", tool))
}
