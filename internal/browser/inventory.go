// File: internal/browser/inventory.go
package browser

// inventoryJS enumerates every interactable element on the page and returns
// a JSON array of descriptors: absolute XPath, tag, text, rendered bbox,
// attribute map, and visibility/interactability flags. It runs inside the
// page, so it must stay dependency-free ES5-compatible JavaScript.
const inventoryJS = `
(function () {
	function absoluteXPath(el) {
		if (el === document.documentElement) return '/html[1]';
		var segs = [];
		for (; el && el.nodeType === 1; el = el.parentNode) {
			var idx = 1;
			for (var sib = el.previousSibling; sib; sib = sib.previousSibling) {
				if (sib.nodeType === 1 && sib.nodeName === el.nodeName) idx++;
			}
			segs.unshift(el.nodeName.toLowerCase() + '[' + idx + ']');
		}
		return '/' + segs.join('/');
	}

	function isDisplayed(el, rect) {
		if (rect.width <= 0 || rect.height <= 0) return false;
		var style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden' &&
			parseFloat(style.opacity || '1') > 0.01;
	}

	function isInteractable(el) {
		if (el.disabled) return false;
		if (el.getAttribute('aria-disabled') === 'true') return false;
		if (el.readOnly === true) return false;
		var type = (el.getAttribute('type') || '').toLowerCase();
		return type !== 'hidden';
	}

	var attrNames = ['id', 'name', 'class', 'type', 'placeholder', 'aria-label',
		'aria-labelledby', 'role', 'value', 'href', 'for', 'contenteditable',
		'title', 'data-testid'];

	var selector = 'a[href], button, input, textarea, select, summary, ' +
		'[contenteditable], [role=button], [role=link], [role=checkbox], ' +
		'[role=radio], [role=combobox], [role=listbox], [role=textbox]';

	var out = [];
	var nodes = document.querySelectorAll(selector);
	for (var i = 0; i < nodes.length; i++) {
		var el = nodes[i];
		var rect = el.getBoundingClientRect();
		var attrs = {};
		for (var j = 0; j < attrNames.length; j++) {
			var v = el.getAttribute(attrNames[j]);
			if (v !== null && v !== '') attrs[attrNames[j]] = v;
		}
		if (el.value !== undefined && el.value !== '' && !attrs['value']) {
			attrs['value'] = String(el.value);
		}
		var text = (el.innerText || el.textContent || '').trim();
		if (text.length > 128) text = text.slice(0, 128);
		out.push({
			xpath: absoluteXPath(el),
			tag_name: el.nodeName.toLowerCase(),
			text_content: text,
			rendered_bbox: {
				x_min: rect.left + window.scrollX,
				y_min: rect.top + window.scrollY,
				x_max: rect.right + window.scrollX,
				y_max: rect.bottom + window.scrollY
			},
			attributes: attrs,
			is_displayed: isDisplayed(el, rect),
			is_interactable: isInteractable(el)
		});
	}
	return JSON.stringify(out);
})()
`

// selectOptionJS sets a <select> to the option whose value or visible text
// matches, then fires input/change so framework listeners notice. Bound as
// a function taking (xpath, wanted).
const selectOptionJS = `
(function (xpath, wanted) {
	var res = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
	var el = res.singleNodeValue;
	if (!el || el.nodeName.toLowerCase() !== 'select') return 'not_found';
	var norm = function (s) { return (s || '').trim().toLowerCase(); };
	var target = norm(wanted);
	for (var i = 0; i < el.options.length; i++) {
		var opt = el.options[i];
		if (norm(opt.value) === target || norm(opt.text) === target) {
			el.selectedIndex = i;
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return 'ok';
		}
	}
	return 'option_not_found';
})(%q, %q)
`

// setCheckedJS checks or unchecks a checkbox/radio and fires change events.
const setCheckedJS = `
(function (xpath, checked) {
	var res = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
	var el = res.singleNodeValue;
	if (!el) return 'not_found';
	if (el.checked !== checked) {
		el.click();
		if (el.checked !== checked) { el.checked = checked; }
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
	}
	return 'ok';
})(%q, %t)
`
