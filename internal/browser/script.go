package browser

// bindingName is the CDP binding the recording script reports through. When
// the binding is missing the script queues events for the drain poll.
const bindingName = "__webflowEmit"

const recordingScript = `
(function () {
	if (window.__webflowRecorder) return;

	const queue = [];

	function snapshot(el) {
		if (!el || el.nodeType !== 1) return null;
		const parent = el.parentElement;
		let index = 1;
		let same = false;
		if (parent) {
			const kids = parent.children;
			for (let i = 0; i < kids.length; i++) {
				if (kids[i] === el) index = i + 1;
				else if (kids[i].tagName === el.tagName) same = true;
			}
		}
		return {
			tag: el.tagName.toLowerCase(),
			id: el.id || undefined,
			attributes: Array.from(el.attributes).map(a => ({ name: a.name, value: a.value })),
			classes: Array.from(el.classList),
			index: index,
			sameTagSiblings: same,
			parent: snapshot(parent)
		};
	}

	function emit(ev) {
		ev.timestamp = Date.now();
		if (typeof window.` + bindingName + ` === 'function') {
			window.` + bindingName + `(JSON.stringify(ev));
			return;
		}
		queue.push(ev);
	}

	function text(el) {
		return ((el && el.innerText) || '').trim().slice(0, 100);
	}

	window.__webflowRecorder = {
		drain: function () { return queue.splice(0, queue.length); }
	};

	document.addEventListener('click', function (e) {
		if (!e.isTrusted) return;
		emit({ type: 'click', target: snapshot(e.target), innerText: text(e.target) });
	}, true);

	document.addEventListener('dblclick', function (e) {
		if (!e.isTrusted) return;
		emit({ type: 'dblclick', target: snapshot(e.target), innerText: text(e.target) });
	}, true);

	document.addEventListener('change', function (e) {
		const el = e.target;
		if (!e.isTrusted || !el || !el.tagName) return;
		const tag = el.tagName.toLowerCase();
		if (tag !== 'input' && tag !== 'textarea' && tag !== 'select') return;
		emit({ type: 'input', target: snapshot(el), value: el.value, inputType: el.type || tag });
	}, true);

	document.addEventListener('submit', function (e) {
		const form = e.target;
		if (!form || !form.elements) return;
		const fields = Array.from(form.elements)
			.filter(f => f.name)
			.map(f => ({ name: f.name, value: f.value || '', type: f.type || '' }));
		emit({ type: 'submit', target: snapshot(form), form: fields });
	}, true);

	document.addEventListener('keydown', function (e) {
		if (!e.isTrusted) return;
		emit({
			type: 'keydown',
			target: snapshot(document.activeElement || e.target),
			key: e.key,
			ctrlKey: e.ctrlKey,
			metaKey: e.metaKey,
			altKey: e.altKey,
			shiftKey: e.shiftKey
		});
	}, true);

	function navigated() {
		emit({ type: 'navigation', url: location.href, title: document.title });
	}
	for (const name of ['pushState', 'replaceState']) {
		const original = history[name];
		history[name] = function () {
			const result = original.apply(this, arguments);
			navigated();
			return result;
		};
	}
	window.addEventListener('popstate', navigated);
	window.addEventListener('hashchange', navigated);
})();
`

// Page-side helpers used by the chromedp target. Each takes its arguments as
// JSON literals appended by the caller.
const (
	countScript = `(function (sel) { return document.querySelectorAll(sel).length; })`

	scrollScript = `(function (sel) {
	const el = document.querySelector(sel);
	if (!el) throw new Error('Element not found: ' + sel);
	el.scrollIntoView({ block: 'center', inline: 'center' });
	return true;
})`

	clickableScript = `(function (sel) {
	const el = document.querySelector(sel);
	if (!el) return false;
	const r = el.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return false;
	const top = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
	return top !== null && (top === el || el.contains(top));
})`

	dispatchScript = `(function (action, sel, value) {
	const el = document.querySelector(sel);
	if (!el) throw new Error('Element not found: ' + sel);
	const fire = type => el.dispatchEvent(new Event(type, { bubbles: true }));
	switch (action) {
	case 'click':
		el.click();
		break;
	case 'clear':
		el.value = '';
		fire('input');
		break;
	case 'append':
		el.value = el.value + value;
		fire('input');
		break;
	case 'change':
		fire('change');
		break;
	case 'submit': {
		const form = el.tagName === 'FORM' ? el : el.closest('form');
		if (!form) throw new Error('No form for ' + sel);
		if (form.requestSubmit) form.requestSubmit(); else form.submit();
		break;
	}
	default:
		throw new Error('Unsupported action: ' + action);
	}
	return true;
})`

	customScript = `(async function (code, step, context) {
	const fn = new Function('step', 'context', code);
	await fn(step, context);
	return true;
})`
)
