package protocol

import "github.com/pitabwire/wiredriver/model"

// w3cCommands is the command table for the W3C WebDriver protocol.
var w3cCommands = []model.CommandTemplate{
	post(NewSession, "/session"),
	del(DeleteSession, "/session/{sessionId}"),
	get(Status, "/status"),
	get(GetTimeouts, "/session/{sessionId}/timeouts"),
	post(SetTimeouts, "/session/{sessionId}/timeouts"),

	post(Get, "/session/{sessionId}/url"),
	get(GetCurrentURL, "/session/{sessionId}/url"),
	post(Back, "/session/{sessionId}/back"),
	post(Forward, "/session/{sessionId}/forward"),
	post(Refresh, "/session/{sessionId}/refresh"),
	get(GetTitle, "/session/{sessionId}/title"),
	get(GetPageSource, "/session/{sessionId}/source"),
	post(ExecuteScript, "/session/{sessionId}/execute/sync"),
	post(ExecuteAsync, "/session/{sessionId}/execute/async"),
	get(TakeScreenshot, "/session/{sessionId}/screenshot"),
	get(ElementScreenshot, "/session/{sessionId}/element/{id}/screenshot"),
	post(PrintPage, "/session/{sessionId}/print"),

	get(GetWindowHandle, "/session/{sessionId}/window"),
	get(GetWindowHandles, "/session/{sessionId}/window/handles"),
	del(CloseWindow, "/session/{sessionId}/window"),
	post(SwitchToWindow, "/session/{sessionId}/window"),
	post(NewWindow, "/session/{sessionId}/window/new"),
	post(SwitchToFrame, "/session/{sessionId}/frame"),
	post(SwitchToParentFrame, "/session/{sessionId}/frame/parent"),
	get(GetWindowRect, "/session/{sessionId}/window/rect"),
	post(SetWindowRect, "/session/{sessionId}/window/rect"),
	post(MaximizeWindow, "/session/{sessionId}/window/maximize"),
	post(MinimizeWindow, "/session/{sessionId}/window/minimize"),
	post(FullscreenWindow, "/session/{sessionId}/window/fullscreen"),

	post(FindElement, "/session/{sessionId}/element"),
	post(FindElements, "/session/{sessionId}/elements"),
	post(FindChildElement, "/session/{sessionId}/element/{id}/element"),
	post(FindChildElements, "/session/{sessionId}/element/{id}/elements"),
	get(GetActiveElement, "/session/{sessionId}/element/active"),
	get(GetElementShadowRoot, "/session/{sessionId}/element/{id}/shadow"),
	post(FindShadowElement, "/session/{sessionId}/shadow/{shadowId}/element"),
	post(FindShadowElements, "/session/{sessionId}/shadow/{shadowId}/elements"),
	get(IsElementSelected, "/session/{sessionId}/element/{id}/selected"),
	get(IsElementEnabled, "/session/{sessionId}/element/{id}/enabled"),
	get(GetElementAttribute, "/session/{sessionId}/element/{id}/attribute/{name}"),
	get(GetElementProperty, "/session/{sessionId}/element/{id}/property/{name}"),
	get(GetElementCSSValue, "/session/{sessionId}/element/{id}/css/{propertyName}"),
	get(GetElementText, "/session/{sessionId}/element/{id}/text"),
	get(GetElementTagName, "/session/{sessionId}/element/{id}/name"),
	get(GetElementRect, "/session/{sessionId}/element/{id}/rect"),
	get(GetComputedRole, "/session/{sessionId}/element/{id}/computedrole"),
	get(GetComputedLabel, "/session/{sessionId}/element/{id}/computedlabel"),
	post(ClickElement, "/session/{sessionId}/element/{id}/click"),
	post(ClearElement, "/session/{sessionId}/element/{id}/clear"),
	post(SendKeysToElement, "/session/{sessionId}/element/{id}/value"),

	get(GetAllCookies, "/session/{sessionId}/cookie"),
	get(GetNamedCookie, "/session/{sessionId}/cookie/{name}"),
	post(AddCookie, "/session/{sessionId}/cookie"),
	del(DeleteCookie, "/session/{sessionId}/cookie/{name}"),
	del(DeleteAllCookies, "/session/{sessionId}/cookie"),

	post(PerformActions, "/session/{sessionId}/actions"),
	del(ReleaseActions, "/session/{sessionId}/actions"),

	post(DismissAlert, "/session/{sessionId}/alert/dismiss"),
	post(AcceptAlert, "/session/{sessionId}/alert/accept"),
	get(GetAlertText, "/session/{sessionId}/alert/text"),
	post(SetAlertValue, "/session/{sessionId}/alert/text"),

	post(AddVirtualAuthenticator, "/session/{sessionId}/webauthn/authenticator"),
	del(RemoveVirtualAuthenticator, "/session/{sessionId}/webauthn/authenticator/{authenticatorId}"),
	post(AddCredential, "/session/{sessionId}/webauthn/authenticator/{authenticatorId}/credential"),
	get(GetCredentials, "/session/{sessionId}/webauthn/authenticator/{authenticatorId}/credentials"),
	del(RemoveCredential, "/session/{sessionId}/webauthn/authenticator/{authenticatorId}/credentials/{credentialId}"),
	del(RemoveAllCredentials, "/session/{sessionId}/webauthn/authenticator/{authenticatorId}/credentials"),
	post(SetUserVerified, "/session/{sessionId}/webauthn/authenticator/{authenticatorId}/uv"),

	get(GetFedCMTitle, "/session/{sessionId}/fedcm/gettitle"),
	get(GetFedCMDialogType, "/session/{sessionId}/fedcm/getdialogtype"),
	get(GetFedCMAccountList, "/session/{sessionId}/fedcm/accountlist"),
	post(SelectFedCMAccount, "/session/{sessionId}/fedcm/selectaccount"),
	post(CancelFedCMDialog, "/session/{sessionId}/fedcm/canceldialog"),

	post(UploadFile, "/session/{sessionId}/se/file"),
	post(GetLog, "/session/{sessionId}/se/log"),
	get(GetLogTypes, "/session/{sessionId}/se/log/types"),
}

func get(id model.CommandID, path string) model.CommandTemplate {
	return model.CommandTemplate{ID: id, Method: "GET", Path: path}
}

func post(id model.CommandID, path string) model.CommandTemplate {
	return model.CommandTemplate{ID: id, Method: "POST", Path: path}
}

func del(id model.CommandID, path string) model.CommandTemplate {
	return model.CommandTemplate{ID: id, Method: "DELETE", Path: path}
}
