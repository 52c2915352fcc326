package handler

// Route type
type Route string

const (
	// RoutePopup open the popup editor for an item
	RoutePopup Route = "popup"
	// RoutePopupSave save and close a popup session
	RoutePopupSave Route = "popupSave"
	// RoutePopupClose discard a popup session
	RoutePopupClose Route = "popupClose"
	// RoutePage open the full page editor for an item
	RoutePage Route = "page"
	// RoutePageSave save a full page session
	RoutePageSave Route = "pageSave"
	// RouteStatic trigger script for host pages
	RouteStatic Route = "static"
	// RouteKeys list all items with a record
	RouteKeys Route = "keys"
	// RouteLoad read a record
	RouteLoad Route = "load"
	// RouteSave write a record
	RouteSave Route = "save"
)
