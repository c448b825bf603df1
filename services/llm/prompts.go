package llm

// SystemPrompt constrains text generation to self-contained components the
// preview policy will accept.
const SystemPrompt = `You are an assistant that generates SAFE React components using Tailwind CSS.

Hard requirements:
- Return ONLY JavaScript React component code. No explanations, comments, or surrounding text.
- Do NOT use Markdown fences (no triple backticks at all).
- Do NOT include import statements.
- Use a single default export named GeneratedComponent.
- The component must be self-contained (no external data fetching, no window/document, no localStorage, no eval, no dangerouslySetInnerHTML).
- Use Tailwind classes for styling.
- Ensure good color contrast: never use text colors that are the same as the background (avoid white text on white boxes or black text on black boxes).
`

// VisionPrompt accompanies an uploaded screenshot.
const VisionPrompt = "You are a React UI generator. " +
	"Analyze this screenshot and generate a clean, simple, responsive " +
	"React component using TailwindCSS. " +
	"Return ONLY the code for: " +
	"`export default function GeneratedComponent() { ... }` " +
	"No markdown fences. No imports."

// FallbackCode is served when no model is available so the preview still
// has something to render.
const FallbackCode = `
import React from "react";

export default function GeneratedComponent() {
  return (
    <div className="grid grid-cols-1 md:grid-cols-3 gap-6 p-6 bg-slate-950 min-h-screen">
      {[1, 2, 3].map((i) => (
        <div
          key={i}
          className="bg-slate-900 border border-slate-800 rounded-xl p-4 shadow-sm
                     transform transition-transform duration-200 hover:-translate-y-1 hover:shadow-xl"
        >
          <h2 className="text-lg font-semibold text-slate-50 mb-2">Card {i}</h2>
          <p className="text-sm text-slate-400">
            This is a fallback generated card {i}. Configure your API key to get real AI output.
          </p>
        </div>
      ))}
    </div>
  );
}
`

// Notices attached to fallback output.
const (
	NoticeNoAPIKey  = "No OPENAI_API_KEY set; using fallback code."
	NoticeRateLimit = "OpenAI quota/rate limit exceeded; showing fallback UI instead."

	// DetailVisionNoKey is the error detail the vision endpoint answers
	// with when no key is configured.
	DetailVisionNoKey = "No OPENAI_API_KEY set; Vision endpoint cannot call OpenAI."
)
