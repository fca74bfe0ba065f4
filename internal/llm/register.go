package llm

// OpenAICompatible lists the preset names that are served by the
// OpenAI-compatible client with only a different base URL. cmd/geotutor
// registers a constructor for each of these plus "custom" (caller-supplied
// base_url).
var OpenAICompatible = []string{"openai", "groq", "ollama", "together", "deepseek"}
