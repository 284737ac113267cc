package tokenizer

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTokenLimit 是未知模型使用的上下文上限.
const DefaultTokenLimit = 8000

// ModelProfile 描述一个目标模型：编码族与上下文上限。
type ModelProfile struct {
	ID          string `yaml:"id" json:"id"`
	Family      Family `yaml:"family" json:"family"`
	TokenLimit  int    `yaml:"token_limit" json:"token_limit"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Vendor      string `yaml:"vendor" json:"vendor"`
	Recommended bool   `yaml:"recommended" json:"recommended"`
}

// familyPrefixes 将模型名前缀映射到编码族，用于表中没有的模型。
// 按前缀长度从长到短匹配。
var familyPrefixes = map[string]Family{
	"gpt-4o":           FamilyO200K,
	"gpt-4.1":          FamilyO200K,
	"o1":               FamilyO200K,
	"o3":               FamilyO200K,
	"gpt-":             FamilyCL100K,
	"claude":           FamilyCL100K,
	"gemini":           FamilyCL100K,
	"llama":            FamilyCL100K,
	"mistral":          FamilyCL100K,
	"deepseek":         FamilyCL100K,
	"grok":             FamilyCL100K,
	"command":          FamilyCL100K,
	"text-davinci-003": FamilyP50K,
	"text-davinci-002": FamilyP50K,
	"code-":            FamilyP50K,
	"text-davinci-001": FamilyR50K,
	"text-curie-001":   FamilyR50K,
	"text-babbage-001": FamilyR50K,
	"text-ada-001":     FamilyR50K,
	"davinci":          FamilyR50K,
	"curie":            FamilyR50K,
	"babbage":          FamilyR50K,
	"ada":              FamilyR50K,
}

// builtinProfiles 是内置模型表.
var builtinProfiles = []ModelProfile{
	{ID: "gpt-4o", Family: FamilyO200K, TokenLimit: 128000, DisplayName: "GPT-4o", Vendor: "openai", Recommended: true},
	{ID: "gpt-4o-mini", Family: FamilyO200K, TokenLimit: 128000, DisplayName: "GPT-4o mini", Vendor: "openai"},
	{ID: "gpt-4-turbo", Family: FamilyCL100K, TokenLimit: 128000, DisplayName: "GPT-4 Turbo", Vendor: "openai"},
	{ID: "gpt-4-32k", Family: FamilyCL100K, TokenLimit: 32768, DisplayName: "GPT-4 32K", Vendor: "openai"},
	{ID: "gpt-4", Family: FamilyCL100K, TokenLimit: 8192, DisplayName: "GPT-4", Vendor: "openai"},
	{ID: "gpt-3.5-turbo-16k", Family: FamilyCL100K, TokenLimit: 16384, DisplayName: "GPT-3.5 Turbo 16K", Vendor: "openai"},
	{ID: "gpt-3.5-turbo", Family: FamilyCL100K, TokenLimit: 4096, DisplayName: "GPT-3.5 Turbo", Vendor: "openai"},
	{ID: "claude-3-opus", Family: FamilyCL100K, TokenLimit: 200000, DisplayName: "Claude 3 Opus", Vendor: "anthropic"},
	{ID: "claude-3-sonnet", Family: FamilyCL100K, TokenLimit: 200000, DisplayName: "Claude 3 Sonnet", Vendor: "anthropic"},
	{ID: "claude-3-haiku", Family: FamilyCL100K, TokenLimit: 200000, DisplayName: "Claude 3 Haiku", Vendor: "anthropic"},
	{ID: "claude-3-5-sonnet", Family: FamilyCL100K, TokenLimit: 200000, DisplayName: "Claude 3.5 Sonnet", Vendor: "anthropic", Recommended: true},
	{ID: "claude-3-7-sonnet", Family: FamilyCL100K, TokenLimit: 200000, DisplayName: "Claude 3.7 Sonnet", Vendor: "anthropic"},
	{ID: "gemini-pro", Family: FamilyCL100K, TokenLimit: 30720, DisplayName: "Gemini Pro", Vendor: "google"},
	{ID: "gemini-1.5-pro", Family: FamilyCL100K, TokenLimit: 1048576, DisplayName: "Gemini 1.5 Pro", Vendor: "google", Recommended: true},
	{ID: "gemini-1.5-flash", Family: FamilyCL100K, TokenLimit: 1048576, DisplayName: "Gemini 1.5 Flash", Vendor: "google"},
	{ID: "llama-3-8b", Family: FamilyCL100K, TokenLimit: 8192, DisplayName: "Llama 3 8B", Vendor: "meta"},
	{ID: "llama-3-70b", Family: FamilyCL100K, TokenLimit: 8192, DisplayName: "Llama 3 70B", Vendor: "meta"},
	{ID: "llama-2-7b", Family: FamilyCL100K, TokenLimit: 4096, DisplayName: "Llama 2 7B", Vendor: "meta"},
	{ID: "llama-2-13b", Family: FamilyCL100K, TokenLimit: 4096, DisplayName: "Llama 2 13B", Vendor: "meta"},
	{ID: "llama-2-70b", Family: FamilyCL100K, TokenLimit: 4096, DisplayName: "Llama 2 70B", Vendor: "meta"},
	{ID: "mistral-large", Family: FamilyCL100K, TokenLimit: 32000, DisplayName: "Mistral Large", Vendor: "mistral"},
	{ID: "mistral-small", Family: FamilyCL100K, TokenLimit: 32000, DisplayName: "Mistral Small", Vendor: "mistral"},
	{ID: "mistral-7b", Family: FamilyCL100K, TokenLimit: 8000, DisplayName: "Mistral 7B", Vendor: "mistral"},
	{ID: "deepseek-7b", Family: FamilyCL100K, TokenLimit: 4096, DisplayName: "DeepSeek 7B", Vendor: "deepseek"},
	{ID: "deepseek-67b", Family: FamilyCL100K, TokenLimit: 4096, DisplayName: "DeepSeek 67B", Vendor: "deepseek"},
	{ID: "deepseek-r1", Family: FamilyCL100K, TokenLimit: 128000, DisplayName: "DeepSeek R1", Vendor: "deepseek"},
	{ID: "grok-v3", Family: FamilyCL100K, TokenLimit: 1000000, DisplayName: "Grok 3", Vendor: "xai"},
	{ID: "command-r-plus", Family: FamilyCL100K, TokenLimit: 128000, DisplayName: "Command R+", Vendor: "cohere"},
	{ID: "command-r", Family: FamilyCL100K, TokenLimit: 128000, DisplayName: "Command R", Vendor: "cohere"},
	{ID: "text-davinci-003", Family: FamilyP50K, TokenLimit: 4097, DisplayName: "Davinci 003", Vendor: "openai"},
	{ID: "code-davinci-002", Family: FamilyP50K, TokenLimit: 8001, DisplayName: "Code Davinci 002", Vendor: "openai"},
	{ID: "davinci", Family: FamilyR50K, TokenLimit: 2049, DisplayName: "Davinci", Vendor: "openai"},
}

// ModelTable 是不可变的模型表，构造后只提供读方法，可并发使用。
type ModelTable struct {
	profiles     []ModelProfile
	byID         map[string]ModelProfile
	idsByLength  []string
	defaultLimit int
}

// NewModelTable validates profiles and freezes them into a table.
// A profile without a family gets one from its ID prefix.
func NewModelTable(profiles []ModelProfile) (*ModelTable, error) {
	t := &ModelTable{
		profiles:     make([]ModelProfile, 0, len(profiles)),
		byID:         make(map[string]ModelProfile, len(profiles)),
		defaultLimit: DefaultTokenLimit,
	}
	for i, p := range profiles {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("model profile %d: id is required", i)
		}
		if _, dup := t.byID[p.ID]; dup {
			return nil, fmt.Errorf("model profile %q: duplicate id", p.ID)
		}
		if p.TokenLimit <= 0 {
			return nil, fmt.Errorf("model profile %q: token_limit must be positive", p.ID)
		}
		if p.Family == "" {
			p.Family = familyByPrefix(p.ID)
		}
		if !p.Family.Known() {
			return nil, fmt.Errorf("model profile %q: unknown family %q", p.ID, p.Family)
		}
		if p.DisplayName == "" {
			p.DisplayName = p.ID
		}
		t.profiles = append(t.profiles, p)
		t.byID[p.ID] = p
		t.idsByLength = append(t.idsByLength, p.ID)
	}
	sort.SliceStable(t.idsByLength, func(i, j int) bool {
		return len(t.idsByLength[i]) > len(t.idsByLength[j])
	})
	return t, nil
}

// BuiltinModelTable returns the table compiled into the binary.
func BuiltinModelTable() *ModelTable {
	t, err := NewModelTable(builtinProfiles)
	if err != nil {
		panic(fmt.Sprintf("builtin model table is invalid: %v", err))
	}
	return t
}

// modelFile is the YAML layout of a model table overlay.
type modelFile struct {
	DefaultLimit int            `yaml:"default_limit"`
	Models       []ModelProfile `yaml:"models"`
}

// LoadModelTable 读取 YAML 覆盖文件，与内置表合并（同 ID 覆盖）后校验并冻结。
func LoadModelTable(path string) (*ModelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model table: %w", err)
	}
	return ParseModelTable(data)
}

// ParseModelTable merges a YAML overlay with the built-in profiles.
func ParseModelTable(data []byte) (*ModelTable, error) {
	var f modelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model table: %w", err)
	}

	overrides := make(map[string]bool, len(f.Models))
	for _, p := range f.Models {
		overrides[strings.TrimSpace(p.ID)] = true
	}
	merged := make([]ModelProfile, 0, len(builtinProfiles)+len(f.Models))
	for _, p := range builtinProfiles {
		if !overrides[p.ID] {
			merged = append(merged, p)
		}
	}
	merged = append(merged, f.Models...)

	t, err := NewModelTable(merged)
	if err != nil {
		return nil, err
	}
	if f.DefaultLimit < 0 {
		return nil, fmt.Errorf("default_limit must not be negative")
	}
	if f.DefaultLimit > 0 {
		t.defaultLimit = f.DefaultLimit
	}
	return t, nil
}

// Lookup 返回模型配置：先精确匹配，再最长前缀匹配（如 "gpt-4-32k-0613" 匹配 "gpt-4-32k"）。
// 未找到时返回默认上限与按前缀推断的编码族，ok 为 false。
func (t *ModelTable) Lookup(model string) (ModelProfile, bool) {
	if p, ok := t.byID[model]; ok {
		return p, true
	}
	for _, id := range t.idsByLength {
		if strings.HasPrefix(model, id) {
			return t.byID[id], true
		}
	}
	return ModelProfile{
		ID:          model,
		Family:      familyByPrefix(model),
		TokenLimit:  t.defaultLimit,
		DisplayName: model,
	}, false
}

// FamilyFor returns the encoding family used to count tokens for model.
func (t *ModelTable) FamilyFor(model string) Family {
	p, _ := t.Lookup(model)
	return p.Family
}

// DefaultLimit returns the limit applied to unknown models.
func (t *ModelTable) DefaultLimit() int {
	return t.defaultLimit
}

// Profiles returns a copy of all profiles in definition order.
func (t *ModelTable) Profiles() []ModelProfile {
	out := make([]ModelProfile, len(t.profiles))
	copy(out, t.profiles)
	return out
}

// Len returns the number of profiles.
func (t *ModelTable) Len() int {
	return len(t.profiles)
}

func familyByPrefix(model string) Family {
	lower := strings.ToLower(model)
	best, bestLen := DefaultFamily, 0
	for prefix, family := range familyPrefixes {
		if len(prefix) > bestLen && strings.HasPrefix(lower, prefix) {
			best, bestLen = family, len(prefix)
		}
	}
	return best
}
