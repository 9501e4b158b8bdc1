package addons

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/archectl/internal/addons"
	"github.com/bnema/archectl/internal/catalog"
	"github.com/bnema/archectl/internal/ui/styles"
)

// exploreState represents the current view state
type exploreState int

const (
	exploreViewList exploreState = iota
	exploreViewDetails
	exploreViewWorking
)

var sortCycle = []catalog.SortKey{catalog.SortName, catalog.SortDownloads, catalog.SortUpdated}

func sortLabel(k catalog.SortKey) string {
	switch k {
	case catalog.SortDownloads:
		return "Downloads"
	case catalog.SortUpdated:
		return "Recent"
	default:
		return "Name"
	}
}

// categoryCycle is "All", "Installed", then every catalog category.
var categoryCycle = append([]string{"All", catalog.CategoryInstalled}, catalog.Categories...)

// exploreItem implements list.Item for catalog addons
type exploreItem struct {
	addon addons.AddonRecord
	state addons.InstallState
	isNew bool
}

func (i exploreItem) Title() string {
	name := i.addon.Name

	var badges []string
	if i.isNew {
		badges = append(badges, styles.FormatNewBadge())
	}
	if i.addon.Warning {
		badges = append(badges, styles.FormatWarningBadge())
	}
	if i.state != addons.StateNotInstalled {
		badges = append(badges, styles.FormatInstallState(i.state))
	}

	if len(badges) > 0 {
		return name + "  " + strings.Join(badges, " ")
	}
	return name
}

func (i exploreItem) Description() string {
	var parts []string

	parts = append(parts, "v"+i.addon.Version)
	if i.addon.Author != "" {
		parts = append(parts, "by "+i.addon.Author)
	}
	parts = append(parts, styles.FormatCategory(i.addon.Category))
	if dl := styles.FormatDownloads(i.addon.Downloads); dl != "" {
		parts = append(parts, dl)
	}
	if st := styles.FormatStatus(i.addon.Status); st != "" {
		parts = append(parts, st)
	}

	if i.addon.Description != "" {
		desc := i.addon.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		parts = append(parts, desc)
	}

	return strings.Join(parts, " | ")
}

func (i exploreItem) FilterValue() string {
	return i.addon.Name + " " + i.addon.Author + " " + i.addon.Description
}

// ExploreKeyMap defines keyboard shortcuts for explore view
type ExploreKeyMap struct {
	Install   key.Binding
	Uninstall key.Binding
	Details   key.Binding
	Order     key.Binding
	Category  key.Binding
	Refresh   key.Binding
	Quit      key.Binding
	Back      key.Binding
}

// DefaultExploreKeyMap returns the default key bindings
func DefaultExploreKeyMap() ExploreKeyMap {
	return ExploreKeyMap{
		Install: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "install/update"),
		),
		Uninstall: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "uninstall"),
		),
		Details: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "details"),
		),
		Order: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "order"),
		),
		Category: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "category"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
	}
}

// ExploreActions connects the browser to the catalog and the install engine
type ExploreActions struct {
	// Load returns the catalog and the installed list. refresh bypasses
	// the catalog cache.
	Load      func(ctx context.Context, refresh bool) ([]addons.AddonRecord, addons.Manifest, catalog.CacheInfo, error)
	Install   func(ctx context.Context, rec addons.AddonRecord) (*addons.InstallResult, error)
	Uninstall func(ctx context.Context, rec addons.AddonRecord) error
}

// ExploreModel is the TUI model for browsing the catalog
type ExploreModel struct {
	ctx     context.Context
	actions ExploreActions
	list    list.Model
	spinner spinner.Model
	keys    ExploreKeyMap
	now     func() time.Time

	state         exploreState
	width, height int

	// Data
	records       []addons.AddonRecord
	installed     addons.Manifest
	selectedAddon *exploreItem
	cacheInfo     catalog.CacheInfo

	// Status
	loading     bool
	refreshing  bool
	statusMsg   string
	errorMsg    string
	progressMsg string

	sortIdx     int
	categoryIdx int
}

// NewExploreModel creates a new explore TUI model
func NewExploreModel(ctx context.Context, actions ExploreActions, refresh bool) ExploreModel {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(styles.Primary).
		BorderForeground(styles.Primary)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(styles.Muted).
		BorderForeground(styles.Primary)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "ArcheRage Addons"
	l.Styles.Title = styles.Title
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false) // We render our own unified footer

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	return ExploreModel{
		ctx:        ctx,
		actions:    actions,
		list:       l,
		spinner:    s,
		keys:       DefaultExploreKeyMap(),
		now:        time.Now,
		state:      exploreViewList,
		loading:    true,
		refreshing: refresh,
	}
}

// Init initializes the model
func (m ExploreModel) Init() tea.Cmd {
	return tea.Batch(
		m.loadAddonsCmd(),
		m.spinner.Tick,
	)
}

// Messages
type exploreAddonsLoadedMsg struct {
	records   []addons.AddonRecord
	installed addons.Manifest
	cacheInfo catalog.CacheInfo
	err       error
}

type exploreActionCompleteMsg struct {
	verb string
	name string
	warn error
	err  error
}

func (m ExploreModel) loadAddonsCmd() tea.Cmd {
	refresh := m.refreshing
	return func() tea.Msg {
		records, installed, info, err := m.actions.Load(m.ctx, refresh)
		return exploreAddonsLoadedMsg{records: records, installed: installed, cacheInfo: info, err: err}
	}
}

func (m ExploreModel) installAddon(rec addons.AddonRecord) tea.Cmd {
	return func() tea.Msg {
		result, err := m.actions.Install(m.ctx, rec)
		msg := exploreActionCompleteMsg{verb: "Installed", name: rec.Name, err: err}
		if result != nil {
			msg.warn = result.SyncErr
		}
		return msg
	}
}

func (m ExploreModel) uninstallAddon(rec addons.AddonRecord) tea.Cmd {
	return func() tea.Msg {
		err := m.actions.Uninstall(m.ctx, rec)
		return exploreActionCompleteMsg{verb: "Uninstalled", name: rec.Name, err: err}
	}
}

// visibleItems applies the current category and sort to the loaded catalog.
func (m ExploreModel) visibleItems() []list.Item {
	f := catalog.Filter{
		Category: categoryCycle[m.categoryIdx],
		Sort:     sortCycle[m.sortIdx],
	}
	now := m.now()
	records := f.Apply(m.records, m.installed)

	items := make([]list.Item, len(records))
	for i, rec := range records {
		items[i] = exploreItem{
			addon: rec,
			state: addons.StateOf(rec, m.installed),
			isNew: catalog.IsNew(rec, now),
		}
	}
	return items
}

func (m *ExploreModel) refreshItems() {
	items := m.visibleItems()
	m.list.SetItems(items)

	title := fmt.Sprintf("ArcheRage Addons (%d", len(items))
	if cat := categoryCycle[m.categoryIdx]; cat != "All" {
		title += " " + cat
	}
	stats := addons.ComputeStats(m.installed, m.records)
	if stats.Outdated > 0 {
		title += fmt.Sprintf(", %d outdated", stats.Outdated)
	}
	if m.cacheInfo.NewAddons > 0 {
		title += fmt.Sprintf(", %d new", m.cacheInfo.NewAddons)
	}
	m.list.Title = title + ")"
}

// Update handles messages
func (m ExploreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h, v := styles.App.GetFrameSize()
		// Reserve 2 lines: 1 for status bar footer, 1 for potential stale warning
		m.list.SetSize(msg.Width-h, msg.Height-v-2)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) && m.list.FilterState() != list.Filtering {
			if m.state == exploreViewList {
				return m, tea.Quit
			}
			if m.state == exploreViewWorking {
				return m, tea.Quit
			}
			m.state = exploreViewList
			m.errorMsg = ""
			m.statusMsg = ""
			return m, nil
		}

		if key.Matches(msg, m.keys.Back) && m.state == exploreViewDetails {
			m.state = exploreViewList
			m.errorMsg = ""
			m.statusMsg = ""
			return m, nil
		}

		if !m.loading {
			switch m.state {
			case exploreViewList:
				return m.updateList(msg)
			case exploreViewDetails:
				return m.updateDetails(msg)
			}
		}

	case exploreAddonsLoadedMsg:
		m.loading = false
		m.refreshing = false
		if msg.err != nil {
			m.errorMsg = msg.err.Error()
			return m, nil
		}
		m.records = msg.records
		m.installed = msg.installed
		m.cacheInfo = msg.cacheInfo
		m.refreshItems()
		return m, nil

	case exploreActionCompleteMsg:
		m.state = exploreViewList
		m.loading = false
		if msg.err != nil {
			m.errorMsg = strings.TrimSuffix(msg.verb, "ed") + " failed: " + msg.err.Error()
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("%s %s", msg.verb, msg.name)
		if msg.warn != nil {
			m.errorMsg = "not fully recorded: " + msg.warn.Error()
		}
		m.loading = true
		return m, m.loadAddonsCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.loading {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m ExploreModel) startInstall(item exploreItem) (tea.Model, tea.Cmd) {
	if item.state == addons.StateUpToDate {
		m.statusMsg = item.addon.Name + " is up to date"
		return m, nil
	}
	verb := "Installing "
	if item.state == addons.StateOutdated {
		verb = "Updating "
	}
	m.state = exploreViewWorking
	m.loading = true
	m.progressMsg = verb + item.addon.Name + " " + item.addon.Version + "..."
	m.errorMsg = ""
	m.statusMsg = ""
	return m, tea.Batch(m.installAddon(item.addon), m.spinner.Tick)
}

func (m ExploreModel) startUninstall(item exploreItem) (tea.Model, tea.Cmd) {
	if item.state == addons.StateNotInstalled {
		m.statusMsg = item.addon.Name + " is not installed"
		return m, nil
	}
	m.state = exploreViewWorking
	m.loading = true
	m.progressMsg = "Uninstalling " + item.addon.Name + "..."
	m.errorMsg = ""
	m.statusMsg = ""
	return m, tea.Batch(m.uninstallAddon(item.addon), m.spinner.Tick)
}

func (m ExploreModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Don't process custom keys when filtering is active
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Install):
		if item, ok := m.list.SelectedItem().(exploreItem); ok {
			return m.startInstall(item)
		}
		return m, nil

	case key.Matches(msg, m.keys.Uninstall):
		if item, ok := m.list.SelectedItem().(exploreItem); ok {
			return m.startUninstall(item)
		}
		return m, nil

	case key.Matches(msg, m.keys.Details):
		if item, ok := m.list.SelectedItem().(exploreItem); ok {
			m.selectedAddon = &item
			m.state = exploreViewDetails
		}
		return m, nil

	case key.Matches(msg, m.keys.Order):
		m.sortIdx = (m.sortIdx + 1) % len(sortCycle)
		m.refreshItems()
		m.statusMsg = "Sorted by " + sortLabel(sortCycle[m.sortIdx])
		return m, nil

	case key.Matches(msg, m.keys.Category):
		m.categoryIdx = (m.categoryIdx + 1) % len(categoryCycle)
		m.refreshItems()
		m.statusMsg = "Category: " + categoryCycle[m.categoryIdx]
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		m.refreshing = true
		m.statusMsg = ""
		m.errorMsg = ""
		return m, tea.Batch(
			m.loadAddonsCmd(),
			m.spinner.Tick,
		)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m ExploreModel) updateDetails(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.selectedAddon == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Details):
		m.state = exploreViewList
		m.selectedAddon = nil
		return m, nil

	case key.Matches(msg, m.keys.Install):
		return m.startInstall(*m.selectedAddon)

	case key.Matches(msg, m.keys.Uninstall):
		return m.startUninstall(*m.selectedAddon)
	}

	return m, nil
}

// View renders the UI
func (m ExploreModel) View() string {
	var content string

	switch m.state {
	case exploreViewList:
		content = m.viewList()
	case exploreViewDetails:
		content = m.viewDetails()
	case exploreViewWorking:
		content = m.viewWorking()
	}

	return styles.App.Render(content)
}

// renderFooter renders a unified status bar with status on left and keybindings on right
func (m ExploreModel) renderFooter() string {
	left := sortLabel(sortCycle[m.sortIdx]) + " | " + categoryCycle[m.categoryIdx]

	if m.errorMsg != "" {
		left += " | " + m.errorMsg
	} else if m.statusMsg != "" {
		left += " | " + m.statusMsg
	}

	right := "/filter i:inst u:rem d:info o:sort c:cat r:sync q:quit"

	// Account for App padding (2 on each side = 4 total horizontal)
	availableWidth := m.width - 4

	leftRendered := styles.StatusBarLeft.Render(" " + left + " ")
	rightRendered := styles.StatusBarRight.Render(" " + right + " ")

	gap := availableWidth - lipgloss.Width(leftRendered) - lipgloss.Width(rightRendered)
	if gap < 0 {
		gap = 0
	}

	middle := lipgloss.NewStyle().Background(styles.StatusBarBg).Render(strings.Repeat(" ", gap))

	return lipgloss.JoinHorizontal(lipgloss.Bottom, leftRendered, middle, rightRendered)
}

func (m ExploreModel) viewList() string {
	var s strings.Builder

	if m.loading {
		msg := "Loading catalog..."
		if m.refreshing {
			msg = "Refreshing catalog..."
		}
		s.WriteString(m.spinner.View() + " " + msg)
		return s.String()
	}

	s.WriteString(m.list.View())

	if m.cacheInfo.IsStale && m.cacheInfo.HasCache {
		s.WriteString("\n" + styles.FormatWarning(fmt.Sprintf("Catalog cache is %s old. Press 'r' to refresh.", m.cacheInfo.Age.Round(time.Minute))))
	}

	s.WriteString("\n" + m.renderFooter())

	return s.String()
}

func (m ExploreModel) viewDetails() string {
	var s strings.Builder

	if m.selectedAddon == nil {
		return "No addon selected"
	}

	item := m.selectedAddon
	a := item.addon

	s.WriteString(styles.Title.Render("Addon Details") + "\n\n")
	s.WriteString(item.Title() + "\n\n")

	if a.Author != "" {
		s.WriteString(fmt.Sprintf("Author:      %s\n", a.Author))
	}
	s.WriteString(fmt.Sprintf("Version:     %s\n", a.Version))
	if entry, ok := m.installed.Find(a.ID); ok && entry.Version != a.Version {
		s.WriteString(fmt.Sprintf("Installed:   %s\n", entry.Version))
	}
	s.WriteString(fmt.Sprintf("Category:    %s\n", a.Category))
	if dl := styles.FormatDownloads(a.Downloads); dl != "" {
		s.WriteString(fmt.Sprintf("Downloads:   %s\n", dl))
	}
	if st := styles.FormatStatus(a.Status); st != "" {
		s.WriteString(fmt.Sprintf("Status:      %s\n", st))
	}
	if !a.UploadDate.IsZero() {
		s.WriteString(fmt.Sprintf("Uploaded:    %s\n", a.UploadDate.Format("2006-01-02")))
	}

	if a.Description != "" {
		s.WriteString(fmt.Sprintf("\nDescription:\n%s\n", a.Description))
	}
	if a.Warning {
		s.WriteString("\n" + styles.FormatWarning("The publisher flagged this addon. Review it before installing.") + "\n")
	}

	s.WriteString("\n")
	switch item.state {
	case addons.StateNotInstalled:
		s.WriteString(styles.Help.Render("i:install  esc/d:back  q:quit"))
	case addons.StateOutdated:
		s.WriteString(styles.Help.Render("i:update  u:uninstall  esc/d:back  q:quit"))
	default:
		s.WriteString(styles.Help.Render("u:uninstall  esc/d:back  q:quit"))
	}

	return s.String()
}

func (m ExploreModel) viewWorking() string {
	return m.spinner.View() + " " + m.progressMsg
}
