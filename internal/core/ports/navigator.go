package ports

// RouteHome is the view shown after login and logout.
const RouteHome = "home"

// Navigator moves the UI to a named view.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }
