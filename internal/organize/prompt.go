package organize

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/pinaxlabs/organizer/internal/llm"
	"github.com/pinaxlabs/organizer/types"
)

// SystemPrompt frames the model as an archivist producing a grouping
// plan. Kept free of per-request data so its token cost is static.
const SystemPrompt = `You are an expert archivist. You organize directories of heterogeneous files into coherent, clearly named groups.

You will receive a list of files. Each file has a metadata block and, when available, its textual content (possibly truncated). Some entries are reference descriptors for binary files such as images; judge those by their filename, metadata and any extracted OCR text.

Group the files by topic, purpose, or natural association. Prefer a handful of meaningful groups over many tiny ones. Respond only with JSON conforming to the provided schema.`

// NoOCRPlaceholder stands in for the content of a ref file that carries
// no extracted text.
const NoOCRPlaceholder = "(No OCR text available — use filename/metadata for grouping)"

// fileDivider separates file sections in the user prompt.
const fileDivider = "\n\n---\n\n"

// userPromptInstructions is the fixed tail of every user prompt. The
// numbered constraints are restated here even though the response
// schema enforces structure, because the schema cannot enforce that
// names come from the input list.
const userPromptInstructions = `

Produce a grouping plan as JSON with "groups", "ungrouped_files" and "reorganization_description".

Constraints:
1. Every input file name must appear in the output, either in a group or in ungrouped_files.
2. Only file names from the input list may appear. Do not invent names.
3. Never emit directory paths (strings ending in "/").
4. A file may appear in more than one group when it genuinely belongs to both.
5. Group names must be safe as directory names: no / \ : * ? " < > | characters.`

// Prompts is the output of the builder: both prompt halves plus the
// truncation accounting for this request.
type Prompts struct {
	System     string
	User       string
	Truncation types.TruncationStats
}

// PromptBuilder assembles token-budgeted prompts. Metadata blocks are
// never truncated; only file content competes for the budget.
type PromptBuilder struct {
	maxTokens        int
	budgetPercentage float64
}

// NewPromptBuilder constructs a builder from LLM configuration.
func NewPromptBuilder(cfg types.LLMConfig) *PromptBuilder {
	return &PromptBuilder{
		maxTokens:        cfg.MaxTokens,
		budgetPercentage: cfg.BudgetPercentage,
	}
}

// Build produces the system and user prompts for a request, truncating
// file contents to fit the prompt's share of the context window.
func (b *PromptBuilder) Build(req *types.OrganizeRequest) *Prompts {
	header := b.buildHeader(req)

	// Static cost: everything that is not file content.
	static := llm.EstimateTokens(SystemPrompt) + llm.EstimateTokens(header) + llm.EstimateTokens(userPromptInstructions)

	metadataTokens := 0
	metaBlocks := make([]string, len(req.Files))
	contentFor := make([]string, len(req.Files))
	var budgetItems []BudgetItem
	for i, f := range req.Files {
		metaBlocks[i] = buildMetadataBlock(&f)
		metadataTokens += llm.EstimateTokens(metaBlocks[i])

		switch {
		case f.Kind == types.FileKindRef && f.Content == "":
			contentFor[i] = NoOCRPlaceholder
			metadataTokens += llm.EstimateTokens(NoOCRPlaceholder)
		case f.Content == "":
			// Empty text file: metadata only.
		default:
			budgetItems = append(budgetItems, BudgetItem{
				Name:   f.Name,
				Tokens: llm.EstimateTokens(f.Content),
			})
		}
	}

	separatorTokens := 0
	if len(req.Files) > 1 {
		separatorTokens = llm.EstimateTokens(fileDivider) * (len(req.Files) - 1)
	}

	contentBudget := int(float64(b.maxTokens)*b.budgetPercentage) - static - metadataTokens - separatorTokens
	if contentBudget < 0 {
		contentBudget = 0
	}

	alloc := AllocateBudget(budgetItems, contentBudget)

	for i, f := range req.Files {
		if contentFor[i] != "" || f.Content == "" {
			continue
		}
		budget, ok := alloc.Allocations[f.Name]
		if !ok {
			continue
		}
		contentFor[i] = llm.Truncate(f.Content, int(budget))
	}

	var user strings.Builder
	user.WriteString(header)
	for i := range req.Files {
		if i > 0 {
			user.WriteString(fileDivider)
		}
		user.WriteString(metaBlocks[i])
		if contentFor[i] != "" {
			user.WriteString("\n")
			user.WriteString(contentFor[i])
		}
	}
	user.WriteString(userPromptInstructions)

	return &Prompts{
		System:     SystemPrompt,
		User:       user.String(),
		Truncation: alloc.Stats,
	}
}

func (b *PromptBuilder) buildHeader(req *types.OrganizeRequest) string {
	var h strings.Builder
	fmt.Fprintf(&h, "Organize the %d files below", len(req.Files))
	if req.DirectoryPath != "" {
		fmt.Fprintf(&h, " from directory %q", req.DirectoryPath)
	}
	h.WriteString(" into named groups.\n")
	if req.CustomPrompt != "" {
		fmt.Fprintf(&h, "\nAdditional instructions from the requester:\n%s\n", req.CustomPrompt)
	}
	if req.StrategyGuidance != "" {
		fmt.Fprintf(&h, "\nGrouping strategy guidance:\n%s\n", req.StrategyGuidance)
	}
	h.WriteString("\n")
	return h.String()
}

// buildMetadataBlock renders the per-file header. Never truncated.
func buildMetadataBlock(f *types.FileInput) string {
	var m strings.Builder
	fmt.Fprintf(&m, "### %s\n", f.Name)
	fmt.Fprintf(&m, "kind: %s\n", f.Kind)
	if f.OriginalName != "" {
		fmt.Fprintf(&m, "original: %s\n", f.OriginalName)
	}
	if f.Mime != "" {
		fmt.Fprintf(&m, "mime: %s\n", f.Mime)
	}
	if f.Size > 0 {
		fmt.Fprintf(&m, "size: %s\n", humanize.Bytes(uint64(f.Size)))
	}
	return m.String()
}
