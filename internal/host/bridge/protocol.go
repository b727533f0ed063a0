package bridge

import "encoding/json"

// Requests and responses are single JSON objects, one per line.
//
//	-> {"id":1,"method":"open","params":{"path":"C:\\models\\site.nwd"}}
//	<- {"id":1,"result":null}
//	-> {"id":2,"method":"busy"}
//	<- {"id":2,"result":true}
//
// A non-empty "error" field fails the call.
type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

const (
	methodOpen             = "open"
	methodBusy             = "busy"
	methodSearch           = "search"
	methodSetHidden        = "set_hidden"
	methodFindExporter     = "find_exporter"
	methodGetPluginOptions = "get_plugin_options"
	methodSetPluginOptions = "set_plugin_options"
	methodExport           = "export"
	methodClose            = "close"
)

type openParams struct {
	Path string `json:"path"`
}

type searchParams struct {
	Term string `json:"term"`
}

type setHiddenParams struct {
	IDs    []string `json:"ids"`
	Hidden bool     `json:"hidden"`
}

type exporterParams struct {
	Exporter string   `json:"exporter"`
	Options  []string `json:"options,omitempty"`
}

type exportParams struct {
	Path     string `json:"path"`
	Exporter string `json:"exporter"`
}

// link is one step of a found item's ancestry, item first, root last.
type link struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Root bool   `json:"root,omitempty"`
}

type foundItem struct {
	ID    string `json:"id"`
	Chain []link `json:"chain"`
}
