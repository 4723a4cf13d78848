package observability

const (
	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"
	AttrToolName         = "tool.name"
	AttrLLMModel         = "llm.model"
	AttrErrorType        = "error.type"

	SpanHTTPRequest   = "http.request"
	SpanInvocation    = "agent.invocation"
	SpanLLMCall       = "agent.llm_call"
	SpanToolExecution = "agent.tool_execution"

	DefaultServiceName  = "tickerdesk"
	DefaultNamespace    = "tickerdesk"
	DefaultMetricsPath  = "/metrics"
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultSamplingRate = 1.0
)
