package fixture

import (
	"encoding/csv"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"
)

func newClient(t *testing.T, opts Options) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := httptest.NewServer(NewApp(opts, arbor.NewLogger()))
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return srv, &http.Client{Jar: jar}
}

func post(t *testing.T, c *http.Client, url, body string) (int, string) {
	t.Helper()
	resp, err := c.Post(url+"/session_api.php", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestIndexServesControls(t *testing.T) {
	srv, c := newClient(t, Options{MenuGap: 40})
	resp, err := c.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, id := range []string{"loginBtn", "logoutBtn", "adminUserBtn", "changePwdModal", "userListBody", "exportDropdownMenu"} {
		assert.Contains(t, string(body), `id="`+id+`"`)
	}
	assert.Contains(t, string(body), "calc(100% + 40px)")
}

func TestLoginReportsRole(t *testing.T) {
	srv, c := newClient(t, Options{})

	_, body := post(t, c, srv.URL, `{"action":"login","username":"admin","password":"wrong"}`)
	assert.False(t, gjson.Get(body, "success").Bool())
	assert.Equal(t, "Identifiants incorrects", gjson.Get(body, "message").String())

	_, body = post(t, c, srv.URL, `{"action":"login","username":"viewer","password":"viewer123"}`)
	assert.True(t, gjson.Get(body, "success").Bool())
	assert.Equal(t, "user", gjson.Get(body, "user.role").String())

	_, body = post(t, c, srv.URL, `{"action":"status"}`)
	assert.Equal(t, "viewer", gjson.Get(body, "user.username").String())
}

func TestChangePassword(t *testing.T) {
	srv, c := newClient(t, Options{})
	app := srv.Config.Handler.(*App)
	post(t, c, srv.URL, `{"action":"login","username":"admin","password":"admin123"}`)

	status, body := post(t, c, srv.URL, `{"action":"change_password","current_password":"nope","new_password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Old password incorrect", gjson.Get(body, "message").String())
	assert.Equal(t, AdminPassword, app.Password(AdminUser))

	status, _ = post(t, c, srv.URL, `{"action":"change_password","current_password":"admin123","new_password":"Secret#2025"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Secret#2025", app.Password(AdminUser))
}

func TestUserListRequiresAdmin(t *testing.T) {
	srv, c := newClient(t, Options{RoleBug: true})

	resp, err := c.Get(srv.URL + "/api.php?action=list_users")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	post(t, c, srv.URL, `{"action":"login","username":"admin","password":"admin123"}`)
	resp, err = c.Get(srv.URL + "/api.php?action=list_users")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "undefined", gjson.GetBytes(body, "users.0.role").String())
}

func TestExportCSV(t *testing.T) {
	srv, c := newClient(t, Options{ExportHeader: []string{"Site Name", "Subnet", "VLAN ID"}})

	resp, err := c.Get(srv.URL + "/api.php?action=export_csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "subnets_export.csv")

	data, _ := io.ReadAll(resp.Body)
	require.True(t, strings.HasPrefix(string(data), "\ufeff"))

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Site Name", "Subnet", "VLAN ID"}, records[0])
	assert.Equal(t, []string{"Paris HQ", "10.0.0.0/24", ""}, records[1])
}
