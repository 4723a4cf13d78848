package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tickerdesk/tickerdesk/pkg/observability"
)

// fakeTool is a minimal Tool for registry tests.
type fakeTool struct {
	name    string
	result  ToolResult
	err     error
	lastArg map[string]any
}

func (f *fakeTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        f.name,
		Description: "fake tool",
		Parameters: []ToolParameter{
			{Name: "input", Type: "string", Description: "input value", Required: true},
		},
	}
}

func (f *fakeTool) GetName() string        { return f.name }
func (f *fakeTool) GetDescription() string { return "fake tool" }

func (f *fakeTool) Execute(_ context.Context, args map[string]any) (ToolResult, error) {
	f.lastArg = args
	return f.result, f.err
}

type toolCaptureRecorder struct {
	observability.NoopRecorder
	tool string
	err  error
}

func (c *toolCaptureRecorder) RecordToolExecution(_ context.Context, tool string, _ time.Duration, err error) {
	c.tool = tool
	c.err = err
}

func TestRegisterAndListTools(t *testing.T) {
	reg := NewToolRegistry()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := reg.RegisterTool(&fakeTool{name: name}); err != nil {
			t.Fatalf("RegisterTool(%s) failed: %v", name, err)
		}
	}

	infos := reg.ListTools()
	if len(infos) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(infos))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if infos[i].Name != want {
			t.Errorf("tool[%d] = %s, want %s", i, infos[i].Name, want)
		}
	}
}

func TestRegisterToolDuplicate(t *testing.T) {
	reg := NewToolRegistry()

	if err := reg.RegisterTool(&fakeTool{name: "dup"}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := reg.RegisterTool(&fakeTool{name: "dup"}); err == nil {
		t.Error("expected error registering duplicate tool name")
	}
}

func TestExecuteToolNotFound(t *testing.T) {
	reg := NewToolRegistry()
	if err := reg.RegisterTool(&fakeTool{name: "get_stock_price"}); err != nil {
		t.Fatalf("RegisterTool failed: %v", err)
	}

	result, err := reg.ExecuteTool(context.Background(), "nope", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if result.Success {
		t.Error("expected failure result for unknown tool")
	}
	if !strings.Contains(result.Error, "'nope' not found") {
		t.Errorf("error %q does not name the missing tool", result.Error)
	}
	if !strings.Contains(result.Error, "get_stock_price") {
		t.Errorf("error %q does not list available tools", result.Error)
	}
}

func TestExecuteToolRecordsMetrics(t *testing.T) {
	recorder := &toolCaptureRecorder{}
	reg := NewToolRegistry(WithRecorder(recorder))

	tool := &fakeTool{
		name:   "echo",
		result: ToolResult{Success: true, Content: "ok", ToolName: "echo"},
	}
	if err := reg.RegisterTool(tool); err != nil {
		t.Fatalf("RegisterTool failed: %v", err)
	}

	args := map[string]any{"input": "hello"}
	result, err := reg.ExecuteTool(context.Background(), "echo", args)
	if err != nil {
		t.Fatalf("ExecuteTool failed: %v", err)
	}
	if !result.Success || result.Content != "ok" {
		t.Errorf("unexpected result: %+v", result)
	}
	if tool.lastArg["input"] != "hello" {
		t.Errorf("tool did not receive args: %v", tool.lastArg)
	}
	if recorder.tool != "echo" {
		t.Errorf("recorded tool %q, want echo", recorder.tool)
	}
	if recorder.err != nil {
		t.Errorf("recorded unexpected error: %v", recorder.err)
	}
}

func TestExecuteToolFailureRecordsError(t *testing.T) {
	recorder := &toolCaptureRecorder{}
	reg := NewToolRegistry(WithRecorder(recorder))

	execErr := fmt.Errorf("upstream broke")
	if err := reg.RegisterTool(&fakeTool{
		name:   "broken",
		result: ToolResult{Success: false, Error: "upstream broke", ToolName: "broken"},
		err:    execErr,
	}); err != nil {
		t.Fatalf("RegisterTool failed: %v", err)
	}

	result, err := reg.ExecuteTool(context.Background(), "broken", nil)
	if err == nil {
		t.Fatal("expected execution error")
	}
	if result.Success {
		t.Error("expected failure result")
	}
	if recorder.err == nil {
		t.Error("expected recorder to see the execution error")
	}
}

func TestDefinitions(t *testing.T) {
	reg := NewToolRegistry()
	if err := reg.RegisterTool(&fakeTool{name: "echo"}); err != nil {
		t.Fatalf("RegisterTool failed: %v", err)
	}

	defs := reg.Definitions()
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}

	def := defs[0]
	if def.Name != "echo" {
		t.Errorf("definition name = %s", def.Name)
	}
	if def.Parameters["type"] != "object" {
		t.Errorf("parameters type = %v", def.Parameters["type"])
	}

	properties, ok := def.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties is %T", def.Parameters["properties"])
	}
	input, ok := properties["input"].(map[string]any)
	if !ok {
		t.Fatalf("input property is %T", properties["input"])
	}
	if input["type"] != "string" {
		t.Errorf("input type = %v", input["type"])
	}

	required, ok := def.Parameters["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "input" {
		t.Errorf("required = %v", def.Parameters["required"])
	}
}
