// Package app implements the App side of a UI connection: the sandboxed
// view that asks its Host to initialize it, receives tool input and results,
// and calls back into the Backend through the Host.
//
// A typical App:
//
//	a := app.New(mcp.ImplementationInfo{Name: "weather-view", Version: "1.0.0"},
//		app.WithSurface(surface),
//	)
//	a.OnToolResult(func(ctx context.Context, res *mcpui.ToolResultParams) error {
//		render(res)
//		return nil
//	})
//	if err := a.Connect(ctx, transport.NewPostMessage(ch, self, host)); err != nil {
//		return err
//	}
//	res, err := a.CallServerTool(ctx, mcp.CallToolRequest{Name: "get-weather"})
package app
