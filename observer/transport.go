package observer

import (
	"context"
	"time"

	"github.com/hydai/mcplug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedTransport wraps a mcplug.Transport with OTEL instrumentation.
type ObservedTransport struct {
	server string
	inner  mcplug.Transport
	inst   *Instruments
}

var _ mcplug.Transport = (*ObservedTransport)(nil)

// WrapTransport returns an instrumented transport.
func WrapTransport(server string, inner mcplug.Transport, inst *Instruments) *ObservedTransport {
	return &ObservedTransport{server: server, inner: inner, inst: inst}
}

// Wrapper adapts the instrument set to the Runtime's transport decoration
// hook.
func Wrapper(inst *Instruments) mcplug.TransportWrapper {
	return func(server string, t mcplug.Transport) mcplug.Transport {
		return WrapTransport(server, t, inst)
	}
}

func (o *ObservedTransport) Initialize(ctx context.Context) (mcplug.ServerInfo, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "mcp.initialize", trace.WithAttributes(
		AttrServer.String(o.server),
	))
	defer span.End()
	start := time.Now()

	info, err := o.inner.Initialize(ctx)

	durationMs := float64(time.Since(start).Milliseconds())
	status := statusOf(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			AttrServerName.String(info.Name),
			AttrServerVersion.String(info.Version),
		)
	}
	span.SetAttributes(AttrStatus.String(status))

	o.inst.Connects.Add(ctx, 1, metric.WithAttributes(
		AttrServer.String(o.server),
		attribute.String("status", status),
	))
	o.inst.ConnectDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrServer.String(o.server),
	))

	o.emit(ctx, "transport initialized",
		otellog.String("mcp.server", o.server),
		otellog.String("mcp.status", status),
		otellog.Float64("mcp.duration_ms", durationMs),
	)

	return info, err
}

func (o *ObservedTransport) ListTools(ctx context.Context) ([]mcplug.ToolDefinition, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "mcp.tools.list", trace.WithAttributes(
		AttrServer.String(o.server),
	))
	defer span.End()

	tools, err := o.inner.ListTools(ctx)

	status := statusOf(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		AttrStatus.String(status),
		AttrToolCount.Int(len(tools)),
	)

	o.inst.ListCalls.Add(ctx, 1, metric.WithAttributes(
		AttrServer.String(o.server),
		attribute.String("status", status),
	))

	return tools, err
}

func (o *ObservedTransport) CallTool(ctx context.Context, name string, args any) (*mcplug.CallResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "mcp.tools.call", trace.WithAttributes(
		AttrServer.String(o.server),
		AttrTool.String(name),
	))
	defer span.End()
	start := time.Now()

	result, err := o.inner.CallTool(ctx, name, args)

	durationMs := float64(time.Since(start).Milliseconds())
	status := statusOf(err)
	blocks := 0
	if result != nil {
		blocks = len(result.Content)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		AttrStatus.String(status),
		AttrContentBlocks.Int(blocks),
	)

	o.inst.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		AttrServer.String(o.server),
		AttrTool.String(name),
		attribute.String("status", status),
	))
	o.inst.CallDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrServer.String(o.server),
		AttrTool.String(name),
	))

	o.emit(ctx, "tool called",
		otellog.String("mcp.server", o.server),
		otellog.String("mcp.tool", name),
		otellog.String("mcp.status", status),
		otellog.Int("mcp.result.content_blocks", blocks),
		otellog.Float64("mcp.duration_ms", durationMs),
	)

	return result, err
}

func (o *ObservedTransport) Close() error {
	return o.inner.Close()
}

// emit writes one structured log record.
func (o *ObservedTransport) emit(ctx context.Context, body string, attrs ...otellog.KeyValue) {
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(body))
	rec.AddAttributes(attrs...)
	o.inst.Logger.Emit(ctx, rec)
}

// statusOf folds an error into the stable code attached to metrics. A nil
// error is "ok".
func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := mcplug.AsError(err); ok {
		return e.Code()
	}
	return "error"
}
