package executor

import (
	"time"

	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/testutil"
)

const baseURL = "http://subnets.local/"

func ms(n int) models.Duration {
	return models.Duration(time.Duration(n) * time.Millisecond)
}

func click(sel string) models.Action {
	return models.Action{Kind: models.ActionClick, Selector: sel}
}

func fill(sel, value string) models.Action {
	return models.Action{Kind: models.ActionFill, Selector: sel, Value: value}
}

func visible(sel string, want bool) models.Predicate {
	expected := "true"
	if !want {
		expected = "false"
	}
	return models.Predicate{Selector: sel, Property: models.PropertyVisible, Expected: expected}
}

func subnetsStates() []models.State {
	return []models.State{
		{Name: "anonymous", Predicates: []models.Predicate{
			visible("#loginBtn", true),
			visible("#loginModal", false),
			{Selector: "#userStatus", Property: models.PropertyText, Expected: "Non connecté"},
		}},
		{Name: "login-modal", Predicates: []models.Predicate{visible("#loginModal", true)}},
		{Name: "authenticated", Predicates: append([]models.Predicate{
			visible("#logoutBtn", true),
			visible("#adminUserBtn", false),
			{Selector: "#userStatus", Property: models.PropertyTextContains, Expected: "Connecté:"},
		}, noModal()...)},
		{Name: "admin", Predicates: append([]models.Predicate{
			visible("#logoutBtn", true),
			visible("#adminUserBtn", true),
		}, noModal()...)},
		{Name: "change-password-open", Predicates: []models.Predicate{visible("#changePwdModal", true)}},
		{Name: "user-admin-open", Predicates: []models.Predicate{visible("#userAdminModal", true)}},
		{Name: "export-menu", Predicates: []models.Predicate{visible("#exportDropdownMenu", true)}},
		{Name: "any"},
	}
}

func noModal() []models.Predicate {
	return []models.Predicate{
		visible("#changePwdModal", false),
		visible("#userAdminModal", false),
		visible("#exportDropdownMenu", false),
	}
}

// loginSteps logs user in and expects the session state
func loginSteps(user, password, expect string) []models.Step {
	return []models.Step{
		{
			Name:    "open login modal",
			Actions: []models.Action{click("#loginBtn")},
			Expect:  "login-modal",
		},
		{
			Name: "submit credentials",
			Actions: []models.Action{
				fill("#loginUsername", user),
				fill("#loginPassword", password),
				click("#loginSubmit"),
			},
			Waits: []models.SignalWait{{
				SignalMatch: models.SignalMatch{
					Kind:        models.SignalNetworkResponse,
					URLContains: "session_api",
					JSON:        map[string]string{"success": "true"},
				},
				Timeout: ms(1000),
			}},
			Expect: expect,
			Assertions: []models.AssertionSpec{
				{Name: "status shows user", Kind: models.AssertTextContains, Selector: "#userStatus", Expected: user},
			},
		},
	}
}

func loginScenario(user, password, role string) *models.Scenario {
	expect := "authenticated"
	if role == "admin" {
		expect = "admin"
	}
	steps := loginSteps(user, password, expect)
	steps[1].Assertions = append(steps[1].Assertions, models.AssertionSpec{
		Name: "session role", Kind: models.AssertSignalField, Signal: models.SignalNetworkResponse, Path: "user.role", Expected: role,
	})
	return &models.Scenario{
		Name:    "login",
		BaseURL: baseURL,
		Initial: "anonymous",
		States:  subnetsStates(),
		Steps:   steps,
	}
}

// adminGateScenario logs in with the given account and requires the admin controls
func adminGateScenario(user, password string) *models.Scenario {
	steps := loginSteps(user, password, "any")
	steps[1].Assertions = nil
	steps = append(steps, models.Step{
		Name:   "admin controls visible",
		Expect: "admin",
		Assertions: []models.AssertionSpec{
			{Kind: models.AssertAttribute, Selector: "#adminUserBtn", Attribute: "style", Expected: "display: inline-block;"},
		},
	})
	return &models.Scenario{Name: "admin gate", BaseURL: baseURL, Initial: "anonymous", States: subnetsStates(), Steps: steps}
}

func wrongPasswordScenario() *models.Scenario {
	steps := loginSteps(testutil.AdminUser, testutil.AdminPassword, "admin")
	steps = append(steps,
		models.Step{
			Name:    "open change password",
			Actions: []models.Action{click("#changePwdBtn")},
			Expect:  "change-password-open",
		},
		models.Step{
			Name: "submit wrong current password",
			Actions: []models.Action{
				fill("#currentPassword", "not-the-password"),
				fill("#newPassword", "Secret#2025"),
				fill("#confirmPassword", "Secret#2025"),
				click("#changePwdSubmit"),
			},
			Waits: []models.SignalWait{{
				SignalMatch: models.SignalMatch{Kind: models.SignalDialog, MessageContains: "incorrect"},
				Timeout:     ms(2000),
			}},
			Expect: "change-password-open",
			Assertions: []models.AssertionSpec{
				{Kind: models.AssertDialogMessage, Expected: "Old password incorrect"},
			},
		},
		models.Step{
			Name:    "close modal",
			Actions: []models.Action{{Kind: models.ActionPressKey, Key: "Escape"}},
			Expect:  "admin",
		},
	)
	return &models.Scenario{Name: "change password wrong", BaseURL: baseURL, Initial: "anonymous", States: subnetsStates(), Steps: steps}
}

func exportScenario(columns []string) *models.Scenario {
	steps := loginSteps(testutil.AdminUser, testutil.AdminPassword, "admin")
	steps = append(steps,
		models.Step{
			Name:    "open export menu",
			Actions: []models.Action{click("#exportBtn")},
			Expect:  "export-menu",
			Assertions: []models.AssertionSpec{
				{Name: "menu below button", Kind: models.AssertBelow, Anchor: "#exportBtn", Selector: "#exportDropdownMenu", Gap: 2, Tolerance: 10},
				{Name: "menu on screen", Kind: models.AssertInViewport, Selector: "#exportDropdownMenu"},
			},
		},
		models.Step{
			Name:    "export csv",
			Actions: []models.Action{click("#exportCsvBtn")},
			Waits: []models.SignalWait{{
				SignalMatch: models.SignalMatch{Kind: models.SignalDownload, FilenameSuffix: ".csv"},
				Timeout:     ms(1000),
				SaveAs:      "subnets.csv",
			}},
			Assertions: []models.AssertionSpec{
				{Name: "csv header", Kind: models.AssertCSVColumns, Columns: columns, OptionalColumns: []string{"VLAN Name"}, MinRows: 1},
			},
		},
	)
	return &models.Scenario{Name: "csv export", BaseURL: baseURL, Initial: "anonymous", States: subnetsStates(), Steps: steps}
}

func roleTableScenario() *models.Scenario {
	steps := loginSteps(testutil.AdminUser, testutil.AdminPassword, "admin")
	steps = append(steps, models.Step{
		Name:    "open user admin",
		Actions: []models.Action{click("#adminUserBtn")},
		Expect:  "user-admin-open",
		Assertions: []models.AssertionSpec{
			{Name: "users listed", Kind: models.AssertCountAtLeast, Selector: "#userListBody tr", Expected: "1"},
			{Name: "roles rendered", Kind: models.AssertTableColumn, Selector: "#userListBody", Column: 2, Forbidden: []string{"undefined", "null"}},
		},
	})
	return &models.Scenario{Name: "role table", BaseURL: baseURL, Initial: "anonymous", States: subnetsStates(), Steps: steps}
}

// readOnlyScenario observes the anonymous page without performing any action
func readOnlyScenario() *models.Scenario {
	return &models.Scenario{
		Name:    "anonymous gate",
		BaseURL: baseURL,
		Initial: "anonymous",
		States:  subnetsStates(),
		Steps: []models.Step{{
			Name:   "admin controls hidden",
			Expect: "anonymous",
			Assertions: []models.AssertionSpec{
				{Kind: models.AssertVisible, Selector: "#adminUserBtn", Expected: "false"},
				{Kind: models.AssertText, Selector: "#userStatus", Expected: "Non connecté"},
				{Kind: models.AssertNoPageErrors},
			},
		}},
	}
}
