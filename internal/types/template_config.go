package types

// TemplateConfig is the typed projection of a template's conf.json.
type TemplateConfig struct {
	Name          string             `json:"name"`
	DisplayName   string             `json:"displayName"`
	Description   string             `json:"description"`
	MainFile      string             `json:"mainFile"`
	CoreFunctions []string           `json:"coreFunctions,omitempty"`
	Functions     []string           `json:"functions"`
	Style         TemplateStyle      `json:"style"`
	Formatting    TemplateFormatting `json:"formatting"`
	Features      TemplateFeatures   `json:"features"`
	Advanced      TemplateAdvanced   `json:"advanced"`
}

// TemplateStyle holds fonts, colors and page geometry.
type TemplateStyle struct {
	PrimaryFont    string `json:"primary_font" toml:"primary_font"`
	HeaderFont     string `json:"header_font" toml:"header_font"`
	FontSize       string `json:"font_size" toml:"font_size"`
	HeaderFontSize string `json:"header_font_size" toml:"header_font_size"`
	AccentColor    string `json:"accent_color" toml:"accent_color"`
	TextColor      string `json:"text_color" toml:"text_color"`
	LinkColor      string `json:"link_color" toml:"link_color"`
	HeaderColor    string `json:"header_color" toml:"header_color"`
	PaperSize      string `json:"paper_size" toml:"paper_size"`
	Margins        string `json:"margins" toml:"margins"`
	LineSpacing    string `json:"line_spacing" toml:"line_spacing"`
}

// TemplateFormatting holds layout and spacing options.
type TemplateFormatting struct {
	ShowSectionLines bool   `json:"show_section_lines" toml:"show_section_lines"`
	SectionSpacing   string `json:"section_spacing" toml:"section_spacing"`
	EntrySpacing     string `json:"entry_spacing" toml:"entry_spacing"`
	AuthorPosition   string `json:"author_position" toml:"author_position"`
	ContactPosition  string `json:"contact_position" toml:"contact_position"`
	ContactSeparator string `json:"contact_separator" toml:"contact_separator"`
}

// TemplateFeatures holds feature toggles.
type TemplateFeatures struct {
	ColoredHeaders bool   `json:"colored_headers" toml:"colored_headers"`
	ShowFooter     bool   `json:"show_footer" toml:"show_footer"`
	ShowIcons      bool   `json:"show_icons" toml:"show_icons"`
	ProfilePicture bool   `json:"profile_picture" toml:"profile_picture"`
	ShowDate       bool   `json:"show_date" toml:"show_date"`
	DateFormat     string `json:"date_format" toml:"date_format"`
}

// TemplateAdvanced holds typesetting flags.
type TemplateAdvanced struct {
	DisableLigatures bool `json:"disable_ligatures" toml:"disable_ligatures"`
	JustifyText      bool `json:"justify_text" toml:"justify_text"`
	Hyphenation      bool `json:"hyphenation" toml:"hyphenation"`
}

// DefaultMainFile is used when conf.json does not name a main file.
const DefaultMainFile = "main.typ"

// DefaultTemplateConfig returns a config with every optional field set to its default.
// Decoding conf.json over this value yields a complete config for partial documents.
func DefaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		MainFile:  DefaultMainFile,
		Functions: []string{},
		Style: TemplateStyle{
			PrimaryFont:    "New Computer Modern",
			HeaderFont:     "New Computer Modern",
			FontSize:       "10pt",
			HeaderFontSize: "20pt",
			AccentColor:    "#000000",
			TextColor:      "#000000",
			LinkColor:      "#000000",
			HeaderColor:    "#000000",
			PaperSize:      "us-letter",
			Margins:        "0.5in",
			LineSpacing:    "0.5em",
		},
		Formatting: TemplateFormatting{
			ShowSectionLines: true,
			SectionSpacing:   "0.4em",
			EntrySpacing:     "0.25em",
			AuthorPosition:   "left",
			ContactPosition:  "left",
			ContactSeparator: "  |  ",
		},
		Features: TemplateFeatures{
			ShowIcons:  true,
			DateFormat: "[month repr:long] [day], [year]",
		},
		Advanced: TemplateAdvanced{
			DisableLigatures: true,
		},
	}
}
