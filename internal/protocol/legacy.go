package protocol

import "github.com/pitabwire/wiredriver/model"

// legacyCommands is the command table for the JSON wire protocol that
// predates the W3C specification. Window commands address a window handle
// explicitly and element lookups use the older endpoint names.
var legacyCommands = []model.CommandTemplate{
	get(Status, "/status"),
	post(NewSession, "/session"),
	get(GetSessionList, "/sessions"),
	get(GetCapabilities, "/session/{sessionId}"),
	del(DeleteSession, "/session/{sessionId}"),
	post(SetTimeouts, "/session/{sessionId}/timeouts"),
	post(ImplicitlyWait, "/session/{sessionId}/timeouts/implicit_wait"),
	post(SetScriptTimeout, "/session/{sessionId}/timeouts/async_script"),

	get(GetWindowHandle, "/session/{sessionId}/window_handle"),
	get(GetWindowHandles, "/session/{sessionId}/window_handles"),
	get(GetCurrentURL, "/session/{sessionId}/url"),
	post(Get, "/session/{sessionId}/url"),
	post(Forward, "/session/{sessionId}/forward"),
	post(Back, "/session/{sessionId}/back"),
	post(Refresh, "/session/{sessionId}/refresh"),
	post(ExecuteScript, "/session/{sessionId}/execute"),
	post(ExecuteAsync, "/session/{sessionId}/execute_async"),
	get(TakeScreenshot, "/session/{sessionId}/screenshot"),
	get(ElementScreenshot, "/session/{sessionId}/screenshot/{id}"),
	post(SwitchToFrame, "/session/{sessionId}/frame"),
	post(SwitchToParentFrame, "/session/{sessionId}/frame/parent"),
	post(SwitchToWindow, "/session/{sessionId}/window"),
	del(CloseWindow, "/session/{sessionId}/window"),
	get(GetWindowSize, "/session/{sessionId}/window/{windowHandle}/size"),
	post(SetWindowSize, "/session/{sessionId}/window/{windowHandle}/size"),
	get(GetWindowPosition, "/session/{sessionId}/window/{windowHandle}/position"),
	post(SetWindowPosition, "/session/{sessionId}/window/{windowHandle}/position"),
	post(MaximizeWindow, "/session/{sessionId}/window/{windowHandle}/maximize"),

	get(GetAllCookies, "/session/{sessionId}/cookie"),
	post(AddCookie, "/session/{sessionId}/cookie"),
	del(DeleteAllCookies, "/session/{sessionId}/cookie"),
	del(DeleteCookie, "/session/{sessionId}/cookie/{name}"),
	get(GetPageSource, "/session/{sessionId}/source"),
	get(GetTitle, "/session/{sessionId}/title"),

	post(FindElement, "/session/{sessionId}/element"),
	post(FindElements, "/session/{sessionId}/elements"),
	post(GetActiveElement, "/session/{sessionId}/element/active"),
	post(FindChildElement, "/session/{sessionId}/element/{id}/element"),
	post(FindChildElements, "/session/{sessionId}/element/{id}/elements"),
	get(DescribeElement, "/session/{sessionId}/element/{id}"),
	post(ClickElement, "/session/{sessionId}/element/{id}/click"),
	get(GetElementText, "/session/{sessionId}/element/{id}/text"),
	post(SubmitElement, "/session/{sessionId}/element/{id}/submit"),
	post(SendKeysToElement, "/session/{sessionId}/element/{id}/value"),
	get(GetElementTagName, "/session/{sessionId}/element/{id}/name"),
	post(ClearElement, "/session/{sessionId}/element/{id}/clear"),
	get(IsElementSelected, "/session/{sessionId}/element/{id}/selected"),
	get(IsElementEnabled, "/session/{sessionId}/element/{id}/enabled"),
	get(IsElementDisplayed, "/session/{sessionId}/element/{id}/displayed"),
	get(GetElementLocation, "/session/{sessionId}/element/{id}/location"),
	get(GetElementSize, "/session/{sessionId}/element/{id}/size"),
	get(GetElementCSSValue, "/session/{sessionId}/element/{id}/css/{propertyName}"),
	get(GetElementAttribute, "/session/{sessionId}/element/{id}/attribute/{name}"),
	get(ElementEquals, "/session/{sessionId}/element/{id}/equals/{other}"),

	get(GetOrientation, "/session/{sessionId}/orientation"),
	post(SetOrientation, "/session/{sessionId}/orientation"),
	post(DismissAlert, "/session/{sessionId}/dismiss_alert"),
	post(AcceptAlert, "/session/{sessionId}/accept_alert"),
	get(GetAlertText, "/session/{sessionId}/alert_text"),
	post(SetAlertValue, "/session/{sessionId}/alert_text"),

	post(GetLog, "/session/{sessionId}/log"),
	get(GetLogTypes, "/session/{sessionId}/log/types"),
}
