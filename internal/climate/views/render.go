package views

import (
	"errors"
	"html/template"
	"io"
	"io/fs"
)

var indexTmpl *template.Template

// Route is one entry of the public route listing.
type Route struct {
	Path        string
	Description string
}

// Routes is the listing served on / and printed by the routes command.
var Routes = []Route{
	{Path: "/api/v1.0/precipitation", Description: "precipitation by date over the last 12 months of data"},
	{Path: "/api/v1.0/stations", Description: "all station codes"},
	{Path: "/api/v1.0/tobs", Description: "last 12 months of temperature observations of the most active station"},
	{Path: "/api/v1.0/start/<start>", Description: "min, avg and max temperature from start (YYYY-MM-DD)"},
	{Path: "/api/v1.0/end/<start>/<end>", Description: "min, avg and max temperature between start and end inclusive"},
	{Path: "/api/v1.0/stations/nearest?lat=<lat>&lon=<lon>&limit=<n>", Description: "stations closest to a point"},
}

type IndexData struct {
	Title  string
	Routes []Route
}

func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	indexTmpl, err = template.ParseFS(sub, "*.html")
	return err
}

// LoadTemplates parses the embedded templates. Call it once at startup.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

func RenderIndex(w io.Writer, data *IndexData) error {
	if indexTmpl == nil {
		return errors.New("index template not loaded: call views.LoadTemplates during startup")
	}
	return indexTmpl.ExecuteTemplate(w, "index.html", data)
}
