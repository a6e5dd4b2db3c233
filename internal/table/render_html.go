package table

import (
	"html/template"
	"io"

	"github.com/xaviermatuz/formdesk/model"
)

const htmlTemplates = `
{{define "actions"}}{{range .}}<button type="button" class="action {{.Style}}" data-action="{{.ID}}" data-method="{{.Method}}" data-path="{{.Path}}"{{with .Confirmation}} data-confirm="{{.Message}}"{{end}}>{{.Label}}</button>{{end}}{{end}}

{{define "overlays"}}{{if .Loading}}<div class="overlay loading" aria-busy="true">Loading...</div>{{end}}{{if .Error}}<div class="overlay error" role="alert">{{.Error}}</div>{{end}}{{end}}

{{define "footer"}}<footer class="table-footer">
<span class="summary">{{.Summary}}</span>
<select name="page_size">{{$size := .PageSize}}{{range .PageSizeOptions}}<option value="{{.}}"{{if eq . $size}} selected{{end}}>{{.}}</option>{{end}}</select>
{{with .Pagination}}<nav class="pagination">
<button type="button" data-page="prev"{{if not .HasPrev}} disabled{{end}}>Previous</button>
{{range .Items}}{{if .Ellipsis}}<span class="gap">{{.Label}}</span>{{else}}<button type="button" data-page="{{.Number}}"{{if .Current}} aria-current="page"{{end}}>{{.Label}}</button>{{end}}{{end}}
<button type="button" data-page="next"{{if not .HasNext}} disabled{{end}}>Next</button>
</nav>{{end}}
</footer>{{end}}

{{define "table"}}<div class="table-view" data-resource="{{.Resource}}" data-layout="table">
{{template "overlays" .}}
<table>
<thead><tr><th class="select"><input type="checkbox" data-select="all"{{if .Selection.AllSelected}} checked{{end}}></th>{{range .Headers}}<th data-key="{{.Key}}"{{if .Sortable}} class="sortable"{{end}}>{{.Label}}{{with .Indicator}} {{.}}{{end}}</th>{{end}}</tr></thead>
<tbody>
{{with .Empty}}<tr class="empty"><td colspan="{{.ColSpan}}">{{.Message}}</td></tr>{{end}}
{{range $row := .Rows}}<tr data-id="{{$row.ID}}"{{if $row.Selected}} class="selected"{{end}}><td class="select"><input type="checkbox" data-select="{{$row.ID}}"{{if $row.Selected}} checked{{end}}></td>{{range $row.Cells}}<td data-key="{{.Key}}">{{if .IsAction}}{{template "actions" $row.Actions}}{{else}}{{.Value}}{{end}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
{{template "footer" .}}
</div>{{end}}

{{define "cards"}}<div class="table-view" data-resource="{{.Resource}}" data-layout="cards">
{{template "overlays" .}}
<ul class="cards">
{{with .Empty}}<li class="card empty">{{.Message}}</li>{{end}}
{{range $row := .Rows}}<li class="card{{if $row.Selected}} selected{{end}}" data-id="{{$row.ID}}">
<input type="checkbox" data-select="{{$row.ID}}"{{if $row.Selected}} checked{{end}}>
<dl>{{range $row.Cells}}{{if not .IsAction}}<dt>{{.Label}}</dt><dd>{{.Value}}</dd>{{end}}{{end}}</dl>
{{template "actions" $row.Actions}}
</li>
{{end}}</ul>
{{template "footer" .}}
</div>{{end}}
`

var htmlTmpl = template.Must(template.New("table-view").Parse(htmlTemplates))

// RenderHTML writes the view as an HTML fragment in its layout.
func RenderHTML(w io.Writer, view model.TableView) error {
	name := "table"
	if view.Layout == model.LayoutCards {
		name = "cards"
	}
	return htmlTmpl.ExecuteTemplate(w, name, view)
}
