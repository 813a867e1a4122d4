package discovery

// Classification rule table. Kept separate from the matching code so the
// vocabulary can be extended without touching the orchestration; bump
// RulesVersion when the vocabulary changes.

const RulesVersion = 2

// RoleLabel is the canonical llm-d pod role label. Most real clusters lack
// it, which is why the classifier degrades through name heuristics.
const RoleLabel = "llm-d.ai/role"

// roleLabelValues maps explicit role label values to roles.
var roleLabelValues = map[string]Role{
	"prefill":         RolePrefill,
	"prefill-server":  RolePrefill,
	"decode":          RoleDecode,
	"decode-server":   RoleDecode,
	"both":            RoleBoth,
	"unified":         RoleBoth,
	"model":           RoleBoth,
	"server":          RoleBoth,
	"vllm":            RoleBoth,
	"epp":             RoleEPP,
	"endpoint-picker": RoleEPP,
	"gateway":         RoleGateway,
}

// eppIndicators mark endpoint-picker / scheduler workloads by name.
var eppIndicators = []string{
	"epp",
	"endpoint-picker",
	"inference-scheduler",
	"scheduler",
}

// gatewayIndicators mark gateway/ingress workloads by name. Only applied
// when the namespace itself looks like an inference namespace, to avoid
// claiming every ingress controller on the cluster.
var gatewayIndicators = []string{
	"gateway",
	"ingress",
}

// servingIndicators is the fixed vocabulary of inference-serving name
// fragments: engine names, model family names, and pool/scheduling
// keywords. Used during deployment-based fallback discovery.
var servingIndicators = []string{
	// serving engines
	"vllm",
	"sglang",
	"tgi",
	"triton",
	"llm-d",
	"modelservice",
	// model families
	"llama",
	"mistral",
	"mixtral",
	"qwen",
	"granite",
	"deepseek",
	"phi",
	"gemma",
	"gpt",
	// pool / scheduling keywords
	"inference",
	"llm",
	"model-server",
	"serving",
}

// inferenceNamespaceIndicators flag a namespace as likely hosting an
// inference stack, enabling the gateway name heuristic there.
var inferenceNamespaceIndicators = []string{
	"llm",
	"inference",
	"vllm",
	"serving",
	"model",
}
