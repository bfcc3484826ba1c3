package protocol

import "github.com/pitabwire/wiredriver/model"

// Command identifiers shared by the built-in protocol levels. Not every
// level defines every command.
const (
	NewSession        model.CommandID = "newSession"
	DeleteSession     model.CommandID = "deleteSession"
	Status            model.CommandID = "status"
	GetSessionList    model.CommandID = "getSessionList"
	GetCapabilities   model.CommandID = "getCapabilities"
	GetTimeouts       model.CommandID = "getTimeouts"
	SetTimeouts       model.CommandID = "setTimeouts"
	ImplicitlyWait    model.CommandID = "implicitlyWait"
	SetScriptTimeout  model.CommandID = "setScriptTimeout"
	Get               model.CommandID = "get"
	GetCurrentURL     model.CommandID = "getCurrentUrl"
	Back              model.CommandID = "back"
	Forward           model.CommandID = "forward"
	Refresh           model.CommandID = "refresh"
	GetTitle          model.CommandID = "getTitle"
	GetPageSource     model.CommandID = "getPageSource"
	ExecuteScript     model.CommandID = "executeScript"
	ExecuteAsync      model.CommandID = "executeAsyncScript"
	TakeScreenshot    model.CommandID = "takeScreenshot"
	ElementScreenshot model.CommandID = "takeElementScreenshot"
	PrintPage         model.CommandID = "printPage"

	GetWindowHandle     model.CommandID = "getWindowHandle"
	GetWindowHandles    model.CommandID = "getWindowHandles"
	CloseWindow         model.CommandID = "closeWindow"
	SwitchToWindow      model.CommandID = "switchToWindow"
	NewWindow           model.CommandID = "newWindow"
	SwitchToFrame       model.CommandID = "switchToFrame"
	SwitchToParentFrame model.CommandID = "switchToParentFrame"
	GetWindowRect       model.CommandID = "getWindowRect"
	SetWindowRect       model.CommandID = "setWindowRect"
	GetWindowSize       model.CommandID = "getWindowSize"
	SetWindowSize       model.CommandID = "setWindowSize"
	GetWindowPosition   model.CommandID = "getWindowPosition"
	SetWindowPosition   model.CommandID = "setWindowPosition"
	MaximizeWindow      model.CommandID = "maximizeWindow"
	MinimizeWindow      model.CommandID = "minimizeWindow"
	FullscreenWindow    model.CommandID = "fullscreenWindow"

	FindElement          model.CommandID = "findElement"
	FindElements         model.CommandID = "findElements"
	FindChildElement     model.CommandID = "findChildElement"
	FindChildElements    model.CommandID = "findChildElements"
	GetActiveElement     model.CommandID = "getActiveElement"
	GetElementShadowRoot model.CommandID = "getElementShadowRoot"
	FindShadowElement    model.CommandID = "findElementFromShadowRoot"
	FindShadowElements   model.CommandID = "findElementsFromShadowRoot"
	DescribeElement      model.CommandID = "describeElement"
	IsElementSelected    model.CommandID = "isElementSelected"
	IsElementEnabled     model.CommandID = "isElementEnabled"
	IsElementDisplayed   model.CommandID = "isElementDisplayed"
	GetElementAttribute  model.CommandID = "getElementAttribute"
	GetElementProperty   model.CommandID = "getElementProperty"
	GetElementCSSValue   model.CommandID = "getElementValueOfCssProperty"
	GetElementText       model.CommandID = "getElementText"
	GetElementTagName    model.CommandID = "getElementTagName"
	GetElementRect       model.CommandID = "getElementRect"
	GetElementLocation   model.CommandID = "getElementLocation"
	GetElementSize       model.CommandID = "getElementSize"
	GetComputedRole      model.CommandID = "getComputedRole"
	GetComputedLabel     model.CommandID = "getComputedLabel"
	ElementEquals        model.CommandID = "elementEquals"
	ClickElement         model.CommandID = "clickElement"
	ClearElement         model.CommandID = "clearElement"
	SubmitElement        model.CommandID = "submitElement"
	SendKeysToElement    model.CommandID = "sendKeysToElement"

	GetAllCookies    model.CommandID = "getAllCookies"
	GetNamedCookie   model.CommandID = "getNamedCookie"
	AddCookie        model.CommandID = "addCookie"
	DeleteCookie     model.CommandID = "deleteCookie"
	DeleteAllCookies model.CommandID = "deleteAllCookies"

	PerformActions model.CommandID = "actions"
	ReleaseActions model.CommandID = "clearActionState"

	DismissAlert   model.CommandID = "dismissAlert"
	AcceptAlert    model.CommandID = "acceptAlert"
	GetAlertText   model.CommandID = "getAlertText"
	SetAlertValue  model.CommandID = "setAlertValue"
	GetOrientation model.CommandID = "getScreenOrientation"
	SetOrientation model.CommandID = "setScreenOrientation"

	AddVirtualAuthenticator    model.CommandID = "addVirtualAuthenticator"
	RemoveVirtualAuthenticator model.CommandID = "removeVirtualAuthenticator"
	AddCredential              model.CommandID = "addCredential"
	GetCredentials             model.CommandID = "getCredentials"
	RemoveCredential           model.CommandID = "removeCredential"
	RemoveAllCredentials       model.CommandID = "removeAllCredentials"
	SetUserVerified            model.CommandID = "setUserVerified"

	GetFedCMTitle       model.CommandID = "getFedCmTitle"
	GetFedCMDialogType  model.CommandID = "getFedCmDialogType"
	GetFedCMAccountList model.CommandID = "getFedCmAccountList"
	SelectFedCMAccount  model.CommandID = "selectFedCmAccount"
	CancelFedCMDialog   model.CommandID = "cancelFedCmDialog"

	UploadFile  model.CommandID = "uploadFile"
	GetLog      model.CommandID = "getLog"
	GetLogTypes model.CommandID = "getAvailableLogTypes"
)
