package testutil

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/uiflow/internal/models"
)

// Accounts known to the scripted subnets application
const (
	AdminUser     = "admin"
	AdminPassword = "admin123"
	PlainUser     = "viewer"
	PlainPassword = "viewer123"
)

// ExportColumns is the header written by the CSV export
var ExportColumns = []string{
	"Site Name", "Admin Number", "Parent Network", "Subnet", "Netmask",
	"First IP", "Last IP", "Usable First", "Usable Last", "Usable Count",
	"Total Hosts", "VLAN ID", "VLAN Name", "Created At", "Updated At",
}

// SubnetsApp scripts the observable behaviour of the subnet manager UI on top of a ScriptedDriver
type SubnetsApp struct {
	*ScriptedDriver

	// ResponseDelay is how long session_api takes to answer
	ResponseDelay time.Duration
	// ExportHeader overrides the CSV header served by the export
	ExportHeader []string
	// RoleBug renders "undefined" in the role column of the user table
	RoleBug bool
	// MenuGap is the vertical distance between the export button and its dropdown
	MenuGap float64

	mu        sync.Mutex
	passwords map[string]string
	roles     map[string]string
	user      string
	downloads int
}

// NewSubnetsApp builds an anonymous session on the subnet manager page
func NewSubnetsApp() *SubnetsApp {
	app := &SubnetsApp{
		ScriptedDriver: NewScriptedDriver(),
		ResponseDelay:  50 * time.Millisecond,
		ExportHeader:   ExportColumns,
		MenuGap:        2,
		passwords:      map[string]string{AdminUser: AdminPassword, PlainUser: PlainPassword},
		roles:          map[string]string{AdminUser: "admin", PlainUser: "user"},
	}

	d := app.ScriptedDriver
	for _, sel := range []string{"#loginModal", "#changePwdModal", "#userAdminModal", "#exportDropdownMenu"} {
		d.Set(sel, Element{})
	}
	for _, sel := range []string{"#loginUsername", "#loginPassword", "#loginSubmit"} {
		d.Set(sel, Element{})
	}
	for _, sel := range []string{"#currentPassword", "#newPassword", "#confirmPassword", "#changePwdSubmit"} {
		d.Set(sel, Element{})
	}
	d.Set("#exportBtn", Element{Visible: true, Text: "Exporter", Box: &models.Box{X: 100, Y: 50, Width: 80, Height: 30, ViewportWidth: 1280, ViewportHeight: 800}})
	d.Set("#exportCsvBtn", Element{})
	app.render()

	d.OnNavigate(func(d *ScriptedDriver, url string) {
		app.closeModals()
		app.render()
	})
	d.OnClick("#loginBtn", func(d *ScriptedDriver) { app.showModal("#loginModal", "#loginUsername", "#loginPassword", "#loginSubmit") })
	d.OnClick("#loginSubmit", func(d *ScriptedDriver) { app.submitLogin() })
	d.OnClick("#logoutBtn", func(d *ScriptedDriver) { app.logout() })
	d.OnClick("#changePwdBtn", func(d *ScriptedDriver) {
		app.showModal("#changePwdModal", "#currentPassword", "#newPassword", "#confirmPassword", "#changePwdSubmit")
	})
	d.OnClick("#changePwdSubmit", func(d *ScriptedDriver) { app.submitPasswordChange() })
	d.OnClick("#adminUserBtn", func(d *ScriptedDriver) { app.openUserAdmin() })
	d.OnClick("#exportBtn", func(d *ScriptedDriver) { app.openExportMenu() })
	d.OnClick("#exportCsvBtn", func(d *ScriptedDriver) { app.exportCSV() })
	d.OnKey("Escape", func(d *ScriptedDriver) { app.closeModals() })

	return app
}

// User returns the logged in username, empty when anonymous
func (a *SubnetsApp) User() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

// Password returns the current password of username
func (a *SubnetsApp) Password(username string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.passwords[username]
}

func (a *SubnetsApp) render() {
	a.mu.Lock()
	user := a.user
	role := a.roles[user]
	a.mu.Unlock()

	d := a.ScriptedDriver
	if user == "" {
		d.Set("#loginBtn", Element{Visible: true, Text: "Connexion"})
		d.Set("#logoutBtn", Element{Text: "Déconnexion"})
		d.Set("#changePwdBtn", Element{Text: "Changer mot de passe"})
		d.Set("#adminUserBtn", Element{Text: "Utilisateurs", Attrs: map[string]string{"style": "display: none;"}})
		d.Set("#userStatus", Element{Visible: true, Text: "Non connecté"})
		return
	}

	// Status first: states key on the buttons, assertions read the status afterwards
	d.Set("#userStatus", Element{Visible: true, Text: fmt.Sprintf("Connecté: %s (%s)", user, role)})
	d.Set("#loginBtn", Element{Text: "Connexion"})
	d.Set("#logoutBtn", Element{Visible: true, Text: "Déconnexion"})
	d.Set("#changePwdBtn", Element{Visible: true, Text: "Changer mot de passe"})
	if role == "admin" {
		d.Set("#adminUserBtn", Element{Visible: true, Text: "Utilisateurs", Attrs: map[string]string{"style": "display: inline-block;"}})
	} else {
		d.Set("#adminUserBtn", Element{Text: "Utilisateurs", Attrs: map[string]string{"style": "display: none;"}})
	}
}

func (a *SubnetsApp) showModal(modal string, fields ...string) {
	a.Show(modal)
	for _, f := range fields {
		a.Show(f)
	}
}

func (a *SubnetsApp) hideModal(modal string, fields ...string) {
	a.Hide(modal)
	for _, f := range fields {
		a.Hide(f)
	}
}

func (a *SubnetsApp) closeModals() {
	a.hideModal("#loginModal", "#loginUsername", "#loginPassword", "#loginSubmit")
	a.hideModal("#changePwdModal", "#currentPassword", "#newPassword", "#confirmPassword", "#changePwdSubmit")
	a.hideModal("#userAdminModal")
	a.Hide("#exportDropdownMenu")
	a.Hide("#exportCsvBtn")
}

func (a *SubnetsApp) respond(status int, body string) {
	a.Emit(models.Signal{
		Kind: models.SignalNetworkResponse,
		Response: &models.ResponsePayload{
			URL:      "http://subnets.local/session_api.php",
			Method:   "POST",
			Status:   status,
			MimeType: "application/json",
			Body:     body,
		},
	})
}

func (a *SubnetsApp) alert(message string) {
	a.Emit(models.Signal{Kind: models.SignalDialog, Dialog: &models.DialogPayload{Type: "alert", Message: message, Accepted: true}})
}

func (a *SubnetsApp) submitLogin() {
	username := a.Value("#loginUsername")
	password := a.Value("#loginPassword")

	a.After(a.ResponseDelay, func(d *ScriptedDriver) {
		a.mu.Lock()
		ok := password != "" && a.passwords[username] == password
		role := a.roles[username]
		if ok {
			a.user = username
		}
		a.mu.Unlock()

		if !ok {
			a.respond(200, `{"success":false,"message":"Identifiants incorrects"}`)
			a.alert("Erreur: Identifiants incorrects")
			return
		}
		a.respond(200, fmt.Sprintf(`{"success":true,"user":{"username":%q,"role":%q}}`, username, role))
		a.hideModal("#loginModal", "#loginUsername", "#loginPassword", "#loginSubmit")
		a.render()
	})
}

func (a *SubnetsApp) logout() {
	a.mu.Lock()
	a.user = ""
	a.mu.Unlock()
	a.respond(200, `{"success":true}`)
	a.render()
}

func (a *SubnetsApp) submitPasswordChange() {
	current := a.Value("#currentPassword")
	next := a.Value("#newPassword")
	confirm := a.Value("#confirmPassword")

	if next != confirm {
		a.alert("Les nouveaux mots de passe ne correspondent pas")
		return
	}

	a.After(a.ResponseDelay, func(d *ScriptedDriver) {
		a.mu.Lock()
		user := a.user
		ok := user != "" && a.passwords[user] == current
		if ok {
			a.passwords[user] = next
		}
		a.mu.Unlock()

		if !ok {
			a.respond(400, `{"success":false,"message":"Old password incorrect"}`)
			a.alert("Erreur: Old password incorrect")
			return
		}
		a.respond(200, `{"success":true,"message":"Password changed successfully"}`)
		a.alert("Mot de passe modifié avec succès")
		a.hideModal("#changePwdModal", "#currentPassword", "#newPassword", "#confirmPassword", "#changePwdSubmit")
	})
}

func (a *SubnetsApp) openUserAdmin() {
	a.mu.Lock()
	users := []string{AdminUser, PlainUser}
	roles := make([]string, len(users))
	for i, u := range users {
		roles[i] = a.roles[u]
		if a.RoleBug {
			roles[i] = "undefined"
		}
	}
	a.mu.Unlock()

	var rows strings.Builder
	rows.WriteString(`<tbody id="userListBody">`)
	for i, u := range users {
		fmt.Fprintf(&rows, "<tr><td>%d</td><td>%s</td><td>%s</td><td>2025-01-15</td></tr>", i+1, u, roles[i])
	}
	rows.WriteString("</tbody>")

	a.Show("#userAdminModal")
	a.Set("#userListBody", Element{Visible: true, HTML: rows.String(), Matches: 1})
	a.Set("#userListBody tr", Element{Visible: true, Matches: len(users)})
}

func (a *SubnetsApp) openExportMenu() {
	btn, _ := a.lookup("#exportBtn")
	menu := models.Box{
		X:              btn.Box.X,
		Y:              btn.Box.Bottom() + a.MenuGap,
		Width:          160,
		Height:         60,
		ViewportWidth:  btn.Box.ViewportWidth,
		ViewportHeight: btn.Box.ViewportHeight,
	}
	a.Set("#exportDropdownMenu", Element{Visible: true, Box: &menu})
	a.Show("#exportCsvBtn")
}

func (a *SubnetsApp) exportCSV() {
	a.mu.Lock()
	a.downloads++
	guid := fmt.Sprintf("download-%d", a.downloads)
	header := a.ExportHeader
	a.mu.Unlock()

	// Row 1 has no VLAN; row 2 has a VLAN ID but no VLAN name
	content := "\ufeff" + csvLine(header)
	for n, site := range []string{"Paris HQ", "Lyon"} {
		row := make([]string, len(header))
		for i, col := range header {
			switch col {
			case "Site Name":
				row[i] = site
			case "Subnet":
				row[i] = fmt.Sprintf("10.0.%d.0/24", n)
			case "Netmask":
				row[i] = "255.255.255.0"
			case "VLAN ID":
				if n == 1 {
					row[i] = "20"
				}
			case "VLAN Name":
			default:
				row[i] = "x"
			}
		}
		content += csvLine(row)
	}
	a.AddDownload(guid, []byte(content))
	a.Hide("#exportDropdownMenu")
	a.Hide("#exportCsvBtn")

	a.After(a.ResponseDelay, func(d *ScriptedDriver) {
		d.Emit(models.Signal{Kind: models.SignalDownload, Download: &models.DownloadPayload{
			GUID:              guid,
			URL:               "http://subnets.local/api.php?action=export_csv",
			SuggestedFilename: "subnets_export.csv",
		}})
	})
}

func csvLine(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",") + "\n"
}
